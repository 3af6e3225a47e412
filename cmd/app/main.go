// ARTify pipeline batch driver: applies a styled edit stack to source
// images and exports or saves the results.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"artify/internal/config"
	"artify/internal/encode"
	"artify/internal/filter"
	"artify/internal/gallery"
	"artify/internal/overlay"
	"artify/internal/pipeline"
	"artify/internal/style"
	"artify/internal/style/onnx"
)

const appVersion = "1.0.0"

func main() {
	var (
		debugMode  = flag.Bool("debug", false, "Enable debug mode with verbose logging")
		configPath = flag.String("config", "", "Path to yaml configuration file")
		styleName  = flag.String("style", "monet", "Style to apply (monet, vangogh, cezanne, ukiyoe)")
		blend      = flag.Float64("blend", 0, "Fraction of the unstyled source blended back in [0, 1]")
		brightness = flag.Float64("brightness", 0, "Brightness adjustment [-100, 100]")
		contrast   = flag.Float64("contrast", 0, "Contrast adjustment [-100, 100]")
		sharpness  = flag.Float64("sharpness", 0, "Sharpness adjustment [0, 200]")
		filterName = flag.String("filter", "none", "Filter (none, sepia, grayscale, colorize, invert, solarize, posterize)")
		frame      = flag.String("frame", "", "Frame style (black, white, gold, metallic)")
		outDir     = flag.String("out", ".", "Output directory for exported images")
		formatName = flag.String("format", "png", "Export format (jpeg, png, bmp)")
		quality    = flag.Int("quality", 0, "JPEG quality [1, 100]; 0 uses the configured default")
		saveEntry  = flag.Bool("save", false, "Also save each result to the gallery")
	)
	flag.Parse()

	logger := initLogger(*debugMode)
	logger.WithFields(logrus.Fields{
		"version":    appVersion,
		"debug_mode": *debugMode,
	}).Info("Starting ARTify pipeline")

	inputs := flag.Args()
	if len(inputs) == 0 {
		logger.Fatal("No input images given")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to load configuration")
	}

	styleID, err := style.Parse(*styleName)
	if err != nil {
		logger.WithField("error", err).Fatal("Unknown style")
	}
	stack, err := buildStack(styleID, *blend, *brightness, *contrast, *sharpness, *filterName, *frame)
	if err != nil {
		logger.WithField("error", err).Fatal("Invalid edit parameters")
	}

	store, err := gallery.Open(cfg.GalleryPath, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to open gallery store")
	}
	defer store.Close()

	engine := onnx.New(cfg.ModelDir, logger)
	defer engine.Close()
	assets := overlay.NewLibrary(cfg.AssetDir, logger)
	manager := pipeline.NewManager(engine, assets, store, cfg.MaxSessions, cfg.PreviewEdge, logger)
	defer manager.CloseAll()

	loader := encode.NewLoader(logger)
	exportQuality := *quality
	if exportQuality == 0 {
		exportQuality = cfg.JPEGQuality
	}

	failures := 0
	for _, path := range inputs {
		if err := processOne(manager, loader, path, stack, *outDir, *formatName,
			exportQuality, *saveEntry, logger); err != nil {
			logger.WithFields(logrus.Fields{"input": path, "error": err}).
				Error("Edit failed")
			failures++
		}
	}

	logger.WithFields(logrus.Fields{
		"processed": len(inputs) - failures,
		"failed":    failures,
	}).Info("Batch finished")
	if failures > 0 {
		os.Exit(1)
	}
}

func processOne(manager *pipeline.Manager, loader *encode.Loader, path string,
	stack pipeline.EditStack, outDir, formatName string, quality int,
	save bool, logger logrus.FieldLogger) error {

	source, err := loader.LoadFile(path)
	if err != nil {
		return err
	}

	sourceID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	session, err := manager.Open(sourceID, sourceID, source)
	if err != nil {
		return err
	}
	defer manager.Close(sourceID)

	resolved := make(chan pipeline.Snapshot, 1)
	session.SetNotify(func(snap pipeline.Snapshot) { resolved <- snap })
	if err := session.Submit(stack); err != nil {
		return err
	}
	snap := <-resolved
	if snap.State != pipeline.StateReady {
		return snap.Err
	}

	data, err := manager.Export(sourceID, formatName, quality)
	if err != nil {
		return err
	}
	format, _ := encode.ParseFormat(formatName)
	outPath := filepath.Join(outDir, fmt.Sprintf("%s_%s.%s", sourceID, stack.Style, format))
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.WithFields(logrus.Fields{"input": path, "output": outPath}).Info("Image exported")

	if save {
		entryID, err := manager.Save(sourceID)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"input": path, "entry": entryID}).
			Info("Saved to gallery")
	}
	return nil
}

func buildStack(id style.ID, blend, brightness, contrast, sharpness float64,
	filterName, frame string) (pipeline.EditStack, error) {

	stack := pipeline.EditStack{Style: id, SourceBlend: blend}
	stack.Adjust.Brightness = brightness
	stack.Adjust.Contrast = contrast
	stack.Adjust.Sharpness = sharpness

	switch filterName {
	case "", "none":
	case "sepia":
		stack.Filter.Kind = filter.KindSepia
	case "grayscale":
		stack.Filter.Kind = filter.KindGrayscale
	case "colorize":
		stack.Filter = filter.Selection{
			Kind:     filter.KindColorize,
			Tint:     filter.Tint{R: 0xff, G: 0x69, B: 0xb4},
			Strength: 0.3,
		}
	case "invert":
		stack.Filter.Kind = filter.KindInvert
	case "solarize":
		stack.Filter = filter.Selection{Kind: filter.KindSolarize, Threshold: 128}
	case "posterize":
		stack.Filter = filter.Selection{Kind: filter.KindPosterize, Bits: 4}
	default:
		return stack, fmt.Errorf("unknown filter: %q", filterName)
	}

	if frame != "" {
		stack.Overlays = append(stack.Overlays, overlay.Layer{
			AssetID: "frame:" + frame,
			Opacity: 1,
		})
	}
	return stack, stack.Validate()
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

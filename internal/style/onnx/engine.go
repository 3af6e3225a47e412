// ONNX generator inference through the OpenCV DNN module. This is the only
// package binding gocv; everything upstream depends on style.Engine.
package onnx

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"artify/internal/raster"
	"artify/internal/style"
)

// workingSize is the square resolution the generators were trained at.
const workingSize = 256

// Engine runs exported generator networks through the OpenCV DNN module.
// Networks load lazily on first use and are shared read-only for the rest
// of the process; a load failure is cached the same way so a broken
// checkpoint fails fast instead of re-probing the filesystem.
type Engine struct {
	mu     sync.Mutex
	dir    string
	nets   map[style.ID]*gocv.Net
	failed map[style.ID]*style.ModelUnavailableError
	logger logrus.FieldLogger
}

// New creates an engine loading "<dir>/<style>.onnx" weights.
func New(dir string, logger logrus.FieldLogger) *Engine {
	return &Engine{
		dir:    dir,
		nets:   make(map[style.ID]*gocv.Net),
		failed: make(map[style.ID]*style.ModelUnavailableError),
		logger: logger,
	}
}

// Infer styles a 3-channel source buffer, returning a new buffer with the
// source's dimensions. See style.Letterbox for the resampling policy.
func (e *Engine) Infer(src *raster.Buffer, id style.ID) (*raster.Buffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Channels != raster.RGB {
		return nil, fmt.Errorf("inference input must have 3 channels, got %d", src.Channels)
	}

	net, err := e.network(id)
	if err != nil {
		return nil, err
	}

	input, err := gocv.ImageToMatRGB(src.ToImage())
	if err != nil {
		return nil, &style.InferenceError{Style: id, Err: err}
	}
	defer input.Close()

	box := style.Letterbox(src.Width, src.Height, workingSize)
	fitted := gocv.NewMat()
	defer fitted.Close()
	gocv.Resize(input, &fitted, image.Pt(box.FitW, box.FitH), 0, 0, gocv.InterpolationArea)

	// Pad out to the square; the border color is ignored under replicate.
	squared := gocv.NewMat()
	defer squared.Close()
	if err := gocv.CopyMakeBorder(fitted, &squared, box.PadTop, box.PadBottom,
		box.PadLeft, box.PadRight, gocv.BorderReplicate, color.RGBA{}); err != nil {
		return nil, &style.InferenceError{Style: id, Err: err}
	}

	// CycleGAN generators take and produce [-1, 1] normalised planes.
	blob := gocv.BlobFromImage(squared, 1.0/127.5, image.Pt(workingSize, workingSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	e.mu.Lock()
	net.SetInput(blob, "")
	prob := net.Forward("")
	e.mu.Unlock()
	defer prob.Close()
	if prob.Empty() {
		return nil, &style.InferenceError{Style: id, Err: fmt.Errorf("empty network output")}
	}

	styled := gocv.NewMatWithSize(workingSize, workingSize, gocv.MatTypeCV8UC3)
	defer styled.Close()
	if err := blobToMat(prob, &styled); err != nil {
		return nil, &style.InferenceError{Style: id, Err: err}
	}

	// Strip the letterbox padding and restore the source resolution.
	content := styled.Region(image.Rect(box.PadLeft, box.PadTop,
		box.PadLeft+box.FitW, box.PadTop+box.FitH))
	defer content.Close()
	restored := gocv.NewMat()
	defer restored.Close()
	gocv.Resize(content, &restored, image.Pt(src.Width, src.Height), 0, 0, gocv.InterpolationLanczos4)

	img, err := restored.ToImage()
	if err != nil {
		return nil, &style.InferenceError{Style: id, Err: err}
	}
	out, err := raster.FromImage(img)
	if err != nil {
		return nil, &style.InferenceError{Style: id, Err: err}
	}
	e.logger.WithFields(logrus.Fields{
		"style":  id,
		"width":  src.Width,
		"height": src.Height,
	}).Info("Style inference completed")
	return out, nil
}

// network returns the loaded net for id, loading it exactly once.
func (e *Engine) network(id style.ID) (*gocv.Net, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if net, ok := e.nets[id]; ok {
		return net, nil
	}
	if err, ok := e.failed[id]; ok {
		return nil, err
	}

	path := filepath.Join(e.dir, string(id)+".onnx")
	if _, statErr := os.Stat(path); statErr != nil {
		err := &style.ModelUnavailableError{Style: id, Path: path, Err: statErr}
		e.failed[id] = err
		e.logger.WithFields(logrus.Fields{"style": id, "path": path}).
			Error("Style model weights not found")
		return nil, err
	}

	net := gocv.ReadNet(path, "")
	if net.Empty() {
		err := &style.ModelUnavailableError{Style: id, Path: path,
			Err: fmt.Errorf("failed to read network")}
		e.failed[id] = err
		e.logger.WithFields(logrus.Fields{"style": id, "path": path}).
			Error("Style model weights could not be parsed")
		return nil, err
	}

	e.nets[id] = &net
	e.logger.WithFields(logrus.Fields{"style": id, "path": path}).
		Info("Style model loaded")
	return &net, nil
}

// Close releases all loaded networks.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, net := range e.nets {
		net.Close()
		delete(e.nets, id)
	}
}

// blobToMat converts a 1x3xHxW float blob back to an 8-bit BGR mat,
// undoing the [-1, 1] normalisation.
func blobToMat(blob gocv.Mat, dst *gocv.Mat) error {
	channels := make([]gocv.Mat, 3)
	for c := 0; c < 3; c++ {
		plane, err := blob.FromPtr(workingSize, workingSize, gocv.MatTypeCV32F, 0, c)
		if err != nil {
			return fmt.Errorf("extract output plane %d: %w", c, err)
		}
		scaled := gocv.NewMat()
		plane.MultiplyFloat(127.5)
		plane.AddFloat(127.5)
		plane.ConvertTo(&scaled, gocv.MatTypeCV8U)
		plane.Close()
		// Blob planes are RGB; mats are BGR.
		channels[2-c] = scaled
	}
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	gocv.Merge(channels, dst)
	return nil
}

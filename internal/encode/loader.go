package encode

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"

	"artify/internal/raster"
)

// Loader decodes source image files into raster buffers.
type Loader struct {
	logger logrus.FieldLogger
}

func NewLoader(logger logrus.FieldLogger) *Loader {
	return &Loader{logger: logger}
}

// Decode reads one image from r.
func (l *Loader) Decode(r io.Reader) (*raster.Buffer, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	buf, err := raster.FromImage(img)
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{
		"format":   format,
		"width":    buf.Width,
		"height":   buf.Height,
		"channels": buf.Channels,
	}).Info("Image decoded")
	return buf, nil
}

// LoadFile decodes the image at path, gated on the supported extensions.
func (l *Loader) LoadFile(path string) (*raster.Buffer, error) {
	if !isSupportedImageFormat(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return l.Decode(f)
}

func isSupportedImageFormat(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

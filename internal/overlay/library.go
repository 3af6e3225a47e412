package overlay

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"artify/internal/raster"
)

// Library holds decoded overlay textures keyed by asset id. Assets load
// lazily on first use and stay cached for the life of the process.
type Library struct {
	mu     sync.Mutex
	dir    string
	cache  map[string]*raster.Buffer
	logger logrus.FieldLogger
}

// NewLibrary creates an asset library rooted at dir. Asset ids map to
// "<dir>/<id>.png".
func NewLibrary(dir string, logger logrus.FieldLogger) *Library {
	return &Library{
		dir:    dir,
		cache:  make(map[string]*raster.Buffer),
		logger: logger,
	}
}

// Register adds an in-memory asset, overriding any file with the same id.
func (l *Library) Register(id string, buf *raster.Buffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[id] = buf
}

// Get returns the asset for id, loading it from disk on first use.
// A missing or undecodable asset returns ok=false; the caller decides
// whether that is fatal (the overlay stage treats it as skippable).
func (l *Library) Get(id string) (*raster.Buffer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if buf, ok := l.cache[id]; ok {
		return buf, buf != nil
	}

	buf := l.load(id)
	l.cache[id] = buf // negative entries cached too, one warning per id
	return buf, buf != nil
}

func (l *Library) load(id string) *raster.Buffer {
	if l.dir == "" || strings.ContainsAny(id, `/\`) {
		return nil
	}
	path := filepath.Join(l.dir, id+".png")
	f, err := os.Open(path)
	if err != nil {
		l.logger.WithFields(logrus.Fields{"asset": id, "path": path}).
			Warn("Overlay asset not found")
		return nil
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		l.logger.WithFields(logrus.Fields{"asset": id, "error": err}).
			Warn("Failed to decode overlay asset")
		return nil
	}
	buf, err := raster.FromImage(img)
	if err != nil {
		l.logger.WithFields(logrus.Fields{"asset": id, "error": err}).
			Warn("Failed to convert overlay asset")
		return nil
	}
	l.logger.WithFields(logrus.Fields{
		"asset":  id,
		"width":  buf.Width,
		"height": buf.Height,
	}).Debug("Overlay asset loaded")
	return buf
}

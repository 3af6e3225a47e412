// Application configuration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries everything the pipeline needs to find its resources.
type Config struct {
	// ModelDir holds the exported generator weights, one "<style>.onnx"
	// per supported style.
	ModelDir string `yaml:"model_dir"`

	// AssetDir holds overlay textures as "<id>.png".
	AssetDir string `yaml:"asset_dir"`

	// GalleryPath is the SQLite database for saved edits.
	GalleryPath string `yaml:"gallery_path"`

	// MaxSessions caps how many images can be open at once.
	MaxSessions int `yaml:"max_sessions"`

	// PreviewEdge bounds the long edge of preview downsamples.
	PreviewEdge int `yaml:"preview_edge"`

	// JPEGQuality is the default export quality.
	JPEGQuality int `yaml:"jpeg_quality"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ModelDir:    "models",
		AssetDir:    "assets/overlays",
		GalleryPath: "gallery.db",
		MaxSessions: 12,
		PreviewEdge: 800,
		JPEGQuality: 90,
	}
}

// Load reads a yaml config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ModelDir == "" {
		return fmt.Errorf("config: model_dir is required")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("config: max_sessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.PreviewEdge < 1 {
		return fmt.Errorf("config: preview_edge must be at least 1, got %d", c.PreviewEdge)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("config: jpeg_quality must be in [1, 100], got %d", c.JPEGQuality)
	}
	return nil
}

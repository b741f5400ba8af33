package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes a directory tree to stamp onto a freshly formatted
// image in one pass, the host-side equivalent of pintos-tests' tar-based
// fixture images. Paths are resolved in the order they appear, so a file
// under a directory must list that directory first.
type Manifest struct {
	Dirs  []string       `yaml:"dirs"`
	Files []ManifestFile `yaml:"files"`
}

// ManifestFile describes a single regular file to create; content is
// optional filler so SizeBytes can exceed len(Content).
type ManifestFile struct {
	Path      string `yaml:"path"`
	SizeBytes uint32 `yaml:"size_bytes"`
	Content   string `yaml:"content,omitempty"`
}

func loadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Package palette loads and persists label palettes: named YAML
// files mapping label names to colors, applied to projects as a
// starting label set.
package palette

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/image-annotator/backend/internal/models"
)

// DefaultFileName is the palette written into an empty palettes
// directory.
const DefaultFileName = "default.yaml"

// Parse parses and validates a palette document.
func Parse(data []byte) (*models.Palette, error) {
	var p models.Palette
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	return &p, nil
}

// ParseReader parses a palette from an io.Reader.
func ParseReader(r io.Reader) (*models.Palette, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// ParseFile parses a palette YAML file.
func ParseFile(path string) (*models.Palette, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseReader(file)
}

// Load reads every *.yaml and *.yml palette in dir, sorted by file
// name. Files that fail to parse are skipped.
func Load(dir string) ([]*models.Palette, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	palettes := make([]*models.Palette, 0, len(names))
	for _, name := range names {
		p, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		palettes = append(palettes, p)
	}
	return palettes, nil
}

// Find returns the palette with the given name, or nil.
func Find(palettes []*models.Palette, name string) *models.Palette {
	for _, p := range palettes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Default returns the built-in general-purpose palette.
func Default() *models.Palette {
	classes := []string{"person", "car", "truck", "bicycle", "dog", "cat", "tree", "building"}
	labels := make([]models.PaletteLabel, len(classes))
	for i, c := range classes {
		labels[i] = models.PaletteLabel{Name: c, Color: models.CycleColor(i)}
	}
	return &models.Palette{Name: "default", Labels: labels}
}

// WriteDefault writes the built-in palette into dir when no palette
// file exists there yet.
func WriteDefault(dir string) error {
	existing, err := Load(dir)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, DefaultFileName), data, 0644)
}

package models

import "fmt"

// Palette defines a reusable label set loaded from a YAML file.
// Applying a palette seeds a project with its labels.
type Palette struct {
	Name   string         `json:"name" yaml:"name"`
	Labels []PaletteLabel `json:"labels" yaml:"labels"`
}

// PaletteLabel is one label definition within a palette.
type PaletteLabel struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// Validate checks palette and label names and colors, including
// duplicate label names.
func (p *Palette) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("palette name must not be empty")
	}
	if len(p.Labels) == 0 {
		return fmt.Errorf("palette %q has no labels", p.Name)
	}
	seen := make(map[string]bool, len(p.Labels))
	for i, l := range p.Labels {
		if l.Name == "" {
			return fmt.Errorf("palette %q: label %d has no name", p.Name, i)
		}
		if seen[l.Name] {
			return fmt.Errorf("palette %q: duplicate label %q", p.Name, l.Name)
		}
		seen[l.Name] = true
		if !ValidHexColor(l.Color) {
			return fmt.Errorf("palette %q: label %q: color %q is not #RRGGBB", p.Name, l.Name, l.Color)
		}
	}
	return nil
}

package models

import (
	"fmt"
	"regexp"
)

// DefaultColor is the fallback display color for new annotations and
// labels when none is configured.
const DefaultColor = "#FF0000"

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ColorCycle seeds colors for labels created without one, such as
// categories discovered by an import.
var ColorCycle = []string{
	"#FF0000", "#00FF00", "#0000FF", "#FFFF00",
	"#FF00FF", "#00FFFF", "#FFA500", "#800080",
}

// CycleColor returns the i-th color of the cycle, wrapping around.
func CycleColor(i int) string {
	if i < 0 {
		i = -i
	}
	return ColorCycle[i%len(ColorCycle)]
}

// ValidHexColor reports whether s is a "#RRGGBB" hex color.
func ValidHexColor(s string) bool {
	return hexColorRe.MatchString(s)
}

// Label is a named category annotations may reference. Names are
// unique within a project and act as the reference key, so renames
// rewrite annotation references.
type Label struct {
	Name  string `json:"name" msgpack:"name"`
	Color string `json:"color" msgpack:"color"`
}

// Validate checks that the label has a name and a well-formed color.
func (l *Label) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("label name must not be empty")
	}
	if !ValidHexColor(l.Color) {
		return fmt.Errorf("label %q: color %q is not #RRGGBB", l.Name, l.Color)
	}
	return nil
}

package rectanglify

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
)

var (
	// ErrInvalidConfig is wrapped by every configuration validation error.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidFrame is wrapped when an input buffer does not match its
	// declared dimensions.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrNotRunning is returned by Filter operations that need a running
	// pipeline.
	ErrNotRunning = errors.New("filter not running")
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		VarianceThreshold: 400,
		MinRegionSize:     4,
		MaxDepth:          8,
		DrawBorders:       false,
		BorderColor:       Color{},
		BorderThickness:   1,
		Parallelism:       0,
	}
}

// fieldError formats a validation error naming the offending field.
func fieldError(field, format string, args ...interface{}) error {
	return fmt.Errorf("config: %s %s: %w", field, fmt.Sprintf(format, args...), ErrInvalidConfig)
}

// Validate checks every field independently of frame size.
func (c Config) Validate() error {
	if math.IsNaN(c.VarianceThreshold) || math.IsInf(c.VarianceThreshold, 0) {
		return fieldError("variance_threshold", "must be finite, got %v", c.VarianceThreshold)
	}
	if c.VarianceThreshold < 0 {
		return fieldError("variance_threshold", "must be >= 0, got %v", c.VarianceThreshold)
	}
	if c.MinRegionSize < 1 {
		return fieldError("min_region_size", "must be >= 1, got %d", c.MinRegionSize)
	}
	if c.MaxDepth < 0 {
		return fieldError("max_depth", "must be >= 0, got %d", c.MaxDepth)
	}
	if c.BorderThickness < 0 {
		return fieldError("border_thickness", "must be >= 0, got %d", c.BorderThickness)
	}
	if c.Parallelism < 0 {
		return fieldError("parallelism", "must be >= 0, got %d", c.Parallelism)
	}
	return nil
}

// ValidateFor additionally rejects a MinRegionSize larger than the frame,
// where "larger than the frame" means larger than both sides. A floor that
// exceeds only one side is accepted: the stop rule then renders the frame
// as a single rectangle, as Validate alone would for any too-small frame.
func (c Config) ValidateFor(width, height int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.MinRegionSize > width && c.MinRegionSize > height {
		return fieldError("min_region_size", "%d larger than %dx%d frame", c.MinRegionSize, width, height)
	}
	return nil
}

// params returns the decomposer parameters.
func (c Config) params() quadtree.Params {
	return quadtree.Params{
		Threshold: c.VarianceThreshold,
		MinSize:   c.MinRegionSize,
		MaxDepth:  c.MaxDepth,
	}
}

// style returns the compositor settings.
func (c Config) style() compose.Style {
	return compose.Style{
		DrawBorders:     c.DrawBorders,
		BorderColor:     c.BorderColor,
		BorderThickness: c.BorderThickness,
	}
}

// workers returns the fork-join width for the decomposer.
func (c Config) workers() int {
	if c.Parallelism <= 1 {
		return 1
	}
	return min(c.Parallelism, runtime.GOMAXPROCS(0))
}

// changes lists the fields that differ between c and next as
// name, old, new triples.
func (c Config) changes(next Config) [][3]interface{} {
	var out [][3]interface{}
	add := func(name string, from, to interface{}) {
		if from != to {
			out = append(out, [3]interface{}{name, from, to})
		}
	}
	add("variance_threshold", c.VarianceThreshold, next.VarianceThreshold)
	add("min_region_size", c.MinRegionSize, next.MinRegionSize)
	add("max_depth", c.MaxDepth, next.MaxDepth)
	add("draw_borders", c.DrawBorders, next.DrawBorders)
	add("border_color", c.BorderColor.String(), next.BorderColor.String())
	add("border_thickness", c.BorderThickness, next.BorderThickness)
	add("parallelism", c.Parallelism, next.Parallelism)
	return out
}

// ParseColor parses a #rrggbb or #rgb hex color.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 4 && len(s) != 7 {
		return Color{}, fmt.Errorf("config: border_color %q: %w", s, ErrInvalidConfig)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("config: border_color %q: %w", s, ErrInvalidConfig)
	}
	r, g, b := c.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

package rectanglify

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_Validate checks that every invalid field is rejected with an
// error naming it.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "zero threshold", modify: func(c *Config) { c.VarianceThreshold = 0 }},
		{name: "zero max depth", modify: func(c *Config) { c.MaxDepth = 0 }},
		{name: "very deep", modify: func(c *Config) { c.MaxDepth = 1 << 20 }},
		{name: "zero thickness", modify: func(c *Config) { c.BorderThickness = 0 }},
		{name: "negative threshold", modify: func(c *Config) { c.VarianceThreshold = -1 }, field: "variance_threshold"},
		{name: "NaN threshold", modify: func(c *Config) { c.VarianceThreshold = math.NaN() }, field: "variance_threshold"},
		{name: "infinite threshold", modify: func(c *Config) { c.VarianceThreshold = math.Inf(1) }, field: "variance_threshold"},
		{name: "zero min size", modify: func(c *Config) { c.MinRegionSize = 0 }, field: "min_region_size"},
		{name: "negative max depth", modify: func(c *Config) { c.MaxDepth = -1 }, field: "max_depth"},
		{name: "negative thickness", modify: func(c *Config) { c.BorderThickness = -2 }, field: "border_thickness"},
		{name: "negative parallelism", modify: func(c *Config) { c.Parallelism = -1 }, field: "parallelism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_ValidateFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinRegionSize = 16

	assert.NoError(t, cfg.ValidateFor(640, 480))
	assert.NoError(t, cfg.ValidateFor(16, 16))
	assert.NoError(t, cfg.ValidateFor(8, 32), "one side large enough")

	// The accepted narrow frame renders as one rectangle.
	in := noiseFrame(3, 8, 32)
	res, err := mustProcessor(t, cfg).Run(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tree.LeafCount())

	err = cfg.ValidateFor(8, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "min_region_size")

	cfg.MinRegionSize = 0
	assert.ErrorIs(t, cfg.ValidateFor(640, 480), ErrInvalidConfig)
}

func TestConfig_Changes(t *testing.T) {
	a := DefaultConfig()
	b := a
	assert.Empty(t, a.changes(b))

	b.MaxDepth = 3
	b.BorderColor = Color{R: 255}
	got := a.changes(b)
	require.Len(t, got, 2)
	assert.Equal(t, [3]interface{}{"max_depth", 8, 3}, got[0])
	assert.Equal(t, [3]interface{}{"border_color", "#000000", "#ff0000"}, got[1])
}

func TestConfig_Workers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.workers())
	cfg.Parallelism = 1
	assert.Equal(t, 1, cfg.workers())
	cfg.Parallelism = 1 << 20
	assert.GreaterOrEqual(t, cfg.workers(), 1)
	assert.Less(t, cfg.workers(), 1<<20)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{in: "#ff0000", want: Color{R: 255}},
		{in: "00ff00", want: Color{G: 255}},
		{in: " #0000FF ", want: Color{B: 255}},
		{in: "#fff", want: Color{R: 255, G: 255, B: 255}},
		{in: "#102030", want: Color{R: 0x10, G: 0x20, B: 0x30}},
		{in: "", wantErr: true},
		{in: "red", wantErr: true},
		{in: "#12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func mustProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg)
	require.NoError(t, err)
	return p
}

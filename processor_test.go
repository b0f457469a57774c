package rectanglify

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// goldenFrame is 8x8 black with a white 2x2 block at (4,4).
func goldenFrame() *Frame {
	f := &Frame{Width: 8, Height: 8, Pix: make([]byte, 8*8*3)}
	white := Color{R: 255, G: 255, B: 255}
	for y := 4; y < 6; y++ {
		for x := 4; x < 6; x++ {
			f.Set(x, y, white)
		}
	}
	return f
}

func goldenConfig() Config {
	cfg := DefaultConfig()
	cfg.VarianceThreshold = 0
	cfg.MinRegionSize = 1
	cfg.MaxDepth = 3
	return cfg
}

func noiseFrame(seed int64, w, h int) *Frame {
	rng := rand.New(rand.NewSource(seed))
	f := &Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
	rng.Read(f.Pix)
	return f
}

func TestProcessFrame_Golden(t *testing.T) {
	in := goldenFrame()
	input := append([]byte(nil), in.Pix...)

	out, err := ProcessFrame(in.Pix, 8, 8, goldenConfig())
	require.NoError(t, err)

	// Every leaf is uniform, so the output reproduces the input exactly.
	assert.Equal(t, input, out)
	assert.Equal(t, input, in.Pix, "input must not be modified")
}

func TestProcessFrame_UnboundedMaxDepth(t *testing.T) {
	in := noiseFrame(11, 32, 32)
	cfg := DefaultConfig()
	cfg.VarianceThreshold = 0
	cfg.MinRegionSize = 1
	cfg.MaxDepth = 1 << 30
	require.NoError(t, cfg.Validate())

	out, err := ProcessFrame(in.Pix, in.Width, in.Height, cfg)
	require.NoError(t, err)
	// Splitting runs down to single pixels, so every pixel keeps its value.
	assert.Equal(t, in.Pix, out)

	p, err := NewProcessor(cfg)
	require.NoError(t, err)
	res, err := p.Run(in)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Tree.MaxDepth(), "depth is bounded by the frame, not the config")
	assert.Equal(t, 32*32, res.Tree.LeafCount())
}

func TestProcessFrame_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		pix     []byte
		w, h    int
		cfg     Config
		wantErr error
	}{
		{name: "short buffer", pix: make([]byte, 10), w: 2, h: 2, cfg: DefaultConfig(), wantErr: ErrInvalidFrame},
		{name: "zero width", pix: nil, w: 0, h: 2, cfg: DefaultConfig(), wantErr: ErrInvalidFrame},
		{name: "bad config", pix: make([]byte, 12), w: 2, h: 2, cfg: Config{MinRegionSize: 0}, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ProcessFrame(tt.pix, tt.w, tt.h, tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, out)
		})
	}
}

func TestProcessFrame_MinSizeEqualsFrame(t *testing.T) {
	in := noiseFrame(1, 16, 16)
	cfg := DefaultConfig()
	cfg.VarianceThreshold = 0
	cfg.MinRegionSize = 16

	out, err := ProcessFrame(in.Pix, 16, 16, cfg)
	require.NoError(t, err)

	// One leaf: every pixel is the frame mean.
	first := out[:3]
	for i := 0; i < len(out); i += 3 {
		require.Equal(t, first, out[i:i+3], "pixel %d", i/3)
	}
}

func TestProcessFrame_ParallelMatchesSequential(t *testing.T) {
	in := noiseFrame(7, 97, 61)
	seq := DefaultConfig()
	seq.VarianceThreshold = 2000
	seq.MinRegionSize = 2
	par := seq
	par.Parallelism = 4

	a, err := ProcessFrame(in.Pix, in.Width, in.Height, seq)
	require.NoError(t, err)
	b, err := ProcessFrame(in.Pix, in.Width, in.Height, par)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewProcessor_RejectsInvalid(t *testing.T) {
	_, err := NewProcessor(Config{MinRegionSize: 1, MaxDepth: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max_depth")
}

func TestProcessor_SetConfigRejectedKeepsActive(t *testing.T) {
	p, err := NewProcessor(goldenConfig())
	require.NoError(t, err)

	bad := goldenConfig()
	bad.BorderThickness = -1
	err = p.SetConfig(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, goldenConfig(), p.Config())
	assert.Zero(t, p.Stats().ConfigVersion)

	good := goldenConfig()
	good.DrawBorders = true
	require.NoError(t, p.SetConfig(good))
	assert.Equal(t, good, p.Config())
	assert.Equal(t, uint64(1), p.Stats().ConfigVersion)
}

// TestProcessor_FrozenSnapshot updates the config after a pass has loaded
// its snapshot; that pass must still produce the old output.
func TestProcessor_FrozenSnapshot(t *testing.T) {
	in := goldenFrame()
	before := goldenConfig()
	after := goldenConfig()
	after.VarianceThreshold = 1e9

	p, err := NewProcessor(before)
	require.NoError(t, err)

	var once sync.Once
	p.onSnapshot = func(Config) {
		once.Do(func() {
			require.NoError(t, p.SetConfig(after))
		})
	}

	res, err := p.Run(in)
	require.NoError(t, err)
	assert.Equal(t, before, res.Config)
	assert.Equal(t, 7, res.Tree.LeafCount())
	assert.Equal(t, in.Pix, res.Output.Pix)

	// The update applies from the next frame on.
	res, err = p.Run(in)
	require.NoError(t, err)
	assert.Equal(t, after, res.Config)
	assert.Equal(t, 1, res.Tree.LeafCount())
}

// TestProcessor_ConcurrentSetConfig flips between two configs while frames
// are processed; every output must match one of the two reference outputs
// exactly, and the one its Result reports.
func TestProcessor_ConcurrentSetConfig(t *testing.T) {
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.WarnLevel)
	defer logrus.SetLevel(level)

	in := noiseFrame(3, 64, 48)

	a := DefaultConfig()
	a.VarianceThreshold = 500
	a.MinRegionSize = 2
	b := DefaultConfig()
	b.VarianceThreshold = 5000
	b.MinRegionSize = 8
	b.DrawBorders = true
	b.BorderColor = Color{R: 255}

	refA, err := ProcessFrame(in.Pix, in.Width, in.Height, a)
	require.NoError(t, err)
	refB, err := ProcessFrame(in.Pix, in.Width, in.Height, b)
	require.NoError(t, err)
	require.NotEqual(t, refA, refB)

	p, err := NewProcessor(a)
	require.NoError(t, err)

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; !stop.Load(); i++ {
			if i%2 == 0 {
				_ = p.SetConfig(b)
			} else {
				_ = p.SetConfig(a)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		res, err := p.Run(in)
		require.NoError(t, err)
		switch res.Config {
		case a:
			require.Equal(t, refA, res.Output.Pix, "frame %d", i)
		case b:
			require.Equal(t, refB, res.Output.Pix, "frame %d", i)
		default:
			t.Fatalf("frame %d used an unknown config %+v", i, res.Config)
		}
	}
	stop.Store(true)
	wg.Wait()
}

func TestProcessor_Stats(t *testing.T) {
	p, err := NewProcessor(goldenConfig())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := p.Process(goldenFrame())
		require.NoError(t, err)
		require.NotNil(t, out)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.FramesProcessed)
	assert.Equal(t, uint64(21), stats.LeavesTotal)
	assert.Equal(t, 7, stats.LastLeaves)
	assert.Equal(t, 2, stats.LastDepth)
	assert.GreaterOrEqual(t, stats.LatencyMaxMS, stats.LatencyMeanMS)
	assert.GreaterOrEqual(t, stats.LatencyMaxMS, stats.LatencyP95MS)
}

func TestProcessor_ProcessInvalidFrame(t *testing.T) {
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)

	_, err = p.Process(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = p.Process(&Frame{Width: 4, Height: 4, Pix: make([]byte, 3)})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	assert.Zero(t, p.Stats().FramesProcessed)
}

func TestProcessor_ProcessWithDoesNotActivate(t *testing.T) {
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)

	res, err := p.ProcessWith(goldenFrame(), goldenConfig())
	require.NoError(t, err)
	assert.Equal(t, 7, res.Tree.LeafCount())
	assert.Equal(t, DefaultConfig(), p.Config())

	_, err = p.ProcessWith(goldenFrame(), Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

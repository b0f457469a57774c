package rectanglify

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/integral"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
	"github.com/Liamolucko/rectanglify/internal/warmup"
)

// ProcessFrame approximates one packed RGB24 frame with flat rectangles and
// returns a new buffer of the same size. input is not modified.
//
// It fails only when cfg is invalid or len(input) != 3*width*height.
func ProcessFrame(input []byte, width, height int, cfg Config) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	in, err := wrapFrame(input, width, height)
	if err != nil {
		return nil, err
	}
	out, _ := render(in, cfg)
	return out.Pix, nil
}

// Processor holds the active Config and runs frame passes against it.
// It is safe for concurrent use: SetConfig may run while frames are being
// processed, and the change takes effect on the next frame.
type Processor struct {
	cfg     atomic.Pointer[Config]
	version atomic.Uint64

	framesProcessed atomic.Uint64
	leavesTotal     atomic.Uint64

	mu         sync.Mutex
	latency    warmup.LatencyWindow
	lastLeaves int
	lastDepth  int

	// onSnapshot runs after a pass has loaded its snapshot. Tests use it to
	// race SetConfig against a pass in flight.
	onSnapshot func(Config)
}

// NewProcessor returns a Processor with cfg active.
func NewProcessor(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rectanglify: %w", err)
	}
	p := &Processor{}
	p.cfg.Store(&cfg)

	logrus.WithFields(logrus.Fields{
		"variance_threshold": cfg.VarianceThreshold,
		"min_region_size":    cfg.MinRegionSize,
		"max_depth":          cfg.MaxDepth,
		"draw_borders":       cfg.DrawBorders,
		"parallelism":        cfg.Parallelism,
	}).Debug("rectanglify: processor created")
	return p, nil
}

// Config returns the active snapshot.
func (p *Processor) Config() Config {
	return *p.cfg.Load()
}

// SetConfig validates cfg and publishes it as the new snapshot. A rejected
// config leaves the active snapshot untouched.
func (p *Processor) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("rectanglify: %w", err)
	}
	next := cfg
	old := p.cfg.Swap(&next)
	version := p.version.Add(1)

	for _, c := range old.changes(next) {
		logrus.WithFields(logrus.Fields{
			"field":   c[0],
			"from":    c[1],
			"to":      c[2],
			"version": version,
		}).Info("rectanglify: changing property")
	}
	return nil
}

// Process runs one pass over in using the active snapshot and returns the
// painted frame.
func (p *Processor) Process(in *Frame) (*Frame, error) {
	res, err := p.Run(in)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Run is Process returning the full Result.
func (p *Processor) Run(in *Frame) (*Result, error) {
	cfg := *p.cfg.Load()
	if p.onSnapshot != nil {
		p.onSnapshot(cfg)
	}
	return p.ProcessWith(in, cfg)
}

// ProcessWith runs one pass with an explicit snapshot. cfg is validated but
// not made active.
func (p *Processor) ProcessWith(in *Frame, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rectanglify: %w", err)
	}
	if in == nil {
		return nil, fmt.Errorf("rectanglify: nil frame: %w", ErrInvalidFrame)
	}
	if _, err := wrapFrame(in.Pix, in.Width, in.Height); err != nil {
		return nil, err
	}

	start := time.Now()
	out, tree := render(in, cfg)
	elapsed := time.Since(start)

	p.record(tree, elapsed)

	return &Result{
		Output:  out,
		Tree:    tree,
		Config:  cfg,
		Elapsed: elapsed,
	}, nil
}

func (p *Processor) record(tree *Tree, elapsed time.Duration) {
	p.framesProcessed.Add(1)
	p.leavesTotal.Add(uint64(tree.LeafCount()))

	p.mu.Lock()
	p.latency.AddSample(float64(elapsed.Microseconds()) / 1000.0)
	p.lastLeaves = tree.LeafCount()
	p.lastDepth = tree.MaxDepth()
	p.mu.Unlock()
}

// Stats returns processor statistics. Thread-safe.
func (p *Processor) Stats() ProcessorStats {
	p.mu.Lock()
	mean, p95, max := p.latency.GetStats()
	lastLeaves, lastDepth := p.lastLeaves, p.lastDepth
	p.mu.Unlock()

	return ProcessorStats{
		FramesProcessed: p.framesProcessed.Load(),
		LeavesTotal:     p.leavesTotal.Load(),
		LastLeaves:      lastLeaves,
		LastDepth:       lastDepth,
		LatencyMeanMS:   mean,
		LatencyP95MS:    p95,
		LatencyMaxMS:    max,
		ConfigVersion:   p.version.Load(),
	}
}

// render builds the statistics tables, decomposes the frame and paints the
// result into a fresh frame. Nothing outlives the call except the outputs.
func render(in *Frame, cfg Config) (*Frame, *Tree) {
	table := integral.Build(in)
	root := in.Bounds()

	var tree *Tree
	if workers := cfg.workers(); workers > 1 {
		tree = quadtree.DecomposeParallel(table, root, cfg.params(), workers)
	} else {
		tree = quadtree.Decompose(table, root, cfg.params())
	}

	out := raster.NewFrame(in.Width, in.Height)
	compose.Render(tree, out, cfg.style())
	return out, tree
}

func wrapFrame(pix []byte, width, height int) (*Frame, error) {
	f, err := raster.Wrap(pix, width, height)
	if err != nil {
		return nil, fmt.Errorf("rectanglify: %v: %w", err, ErrInvalidFrame)
	}
	return f, nil
}

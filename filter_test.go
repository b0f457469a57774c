package rectanglify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liamolucko/rectanglify"
)

// TestNewFilter_FailFast checks that configuration errors are caught at
// construction time, before GStreamer is touched.
func TestNewFilter_FailFast(t *testing.T) {
	valid := rectanglify.FilterConfig{
		Source:     "videotestsrc",
		Sink:       "fakesink",
		Processing: rectanglify.DefaultConfig(),
	}

	tests := []struct {
		name   string
		modify func(c *rectanglify.FilterConfig)
		errMsg string
	}{
		{
			name:   "empty source",
			modify: func(c *rectanglify.FilterConfig) { c.Source = "" },
			errMsg: "source fragment is required",
		},
		{
			name:   "empty sink",
			modify: func(c *rectanglify.FilterConfig) { c.Sink = "" },
			errMsg: "sink fragment is required",
		},
		{
			name:   "negative output fps",
			modify: func(c *rectanglify.FilterConfig) { c.OutputFPS = -1 },
			errMsg: "invalid output FPS",
		},
		{
			name:   "negative queue depth",
			modify: func(c *rectanglify.FilterConfig) { c.QueueDepth = -1 },
			errMsg: "invalid queue depth",
		},
		{
			name:   "invalid processing config",
			modify: func(c *rectanglify.FilterConfig) { c.Processing.MinRegionSize = 0 },
			errMsg: "min_region_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)

			f, err := rectanglify.NewFilter(cfg)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCalculateFPSStats(t *testing.T) {
	start := time.Unix(1700000000, 0)
	times := make([]time.Time, 10)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 100 * time.Millisecond)
	}

	stats := rectanglify.CalculateFPSStats(times, time.Second)
	assert.Equal(t, 10, stats.FramesReceived)
	assert.Equal(t, time.Second, stats.Duration)
	assert.InDelta(t, 10.0, stats.FPSMean, 1e-9)
	assert.InDelta(t, 10.0, stats.FPSMin, 1e-6)
	assert.InDelta(t, 10.0, stats.FPSMax, 1e-6)
	assert.InDelta(t, 0.0, stats.FPSStdDev, 1e-6)
	assert.True(t, stats.IsStable)

	empty := rectanglify.CalculateFPSStats(nil, time.Second)
	assert.Zero(t, empty.FramesReceived)
	assert.False(t, empty.IsStable)
}

package warmup

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func periodic(n int, interval time.Duration) []time.Time {
	start := time.Unix(1700000000, 0)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * interval)
	}
	return out
}

func TestCalculateFPSStats(t *testing.T) {
	t.Run("periodic_is_stable", func(t *testing.T) {
		stats := CalculateFPSStats(periodic(30, 100*time.Millisecond), 3*time.Second)

		assert.InDelta(t, 10.0, stats.FPSMean, 1e-9)
		assert.InDelta(t, 10.0, stats.FPSMin, 1e-6)
		assert.InDelta(t, 10.0, stats.FPSMax, 1e-6)
		assert.InDelta(t, 0.0, stats.FPSStdDev, 1e-6)
		assert.InDelta(t, 0.0, stats.JitterMean, 1e-9)
		assert.True(t, stats.IsStable)
		t.Logf("✅ periodic stream: %.2f fps, stable=%v", stats.FPSMean, stats.IsStable)
	})

	t.Run("alternating_intervals_are_unstable", func(t *testing.T) {
		start := time.Unix(1700000000, 0)
		times := []time.Time{start}
		for i := 1; i < 30; i++ {
			step := 500 * time.Millisecond
			if i%2 == 0 {
				step = 1500 * time.Millisecond
			}
			times = append(times, times[i-1].Add(step))
		}
		stats := CalculateFPSStats(times, 30*time.Second)

		assert.InDelta(t, 2.0, stats.FPSMax, 1e-6)
		assert.InDelta(t, 1.0/1.5, stats.FPSMin, 1e-6)
		assert.False(t, stats.IsStable)
		assert.Greater(t, stats.JitterMax, 0.4)
	})

	t.Run("edge_cases", func(t *testing.T) {
		tests := []struct {
			name       string
			frameTimes []time.Time
			duration   time.Duration
		}{
			{"zero_frames", nil, time.Second},
			{"one_frame", periodic(1, time.Second), time.Second},
			{"identical_timestamps", []time.Time{time.Unix(5, 0), time.Unix(5, 0)}, time.Second},
			{"zero_duration", periodic(5, time.Second), 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				stats := CalculateFPSStats(tt.frameTimes, tt.duration)
				require.NotNil(t, stats)
				assert.False(t, stats.IsStable)
				assert.Equal(t, len(tt.frameTimes), stats.FramesReceived)
				assert.False(t, math.IsNaN(stats.FPSMean))
				assert.False(t, math.IsInf(stats.FPSMin, 0))
			})
		}
	})
}

func TestLatencyWindow_Properties(t *testing.T) {
	t.Run("Property_1_BoundedGrowth", func(t *testing.T) {
		window := &LatencyWindow{}
		for i := 0; i < 500; i++ {
			window.AddSample(float64(i))
			require.LessOrEqual(t, window.Count, len(window.Samples))
			require.GreaterOrEqual(t, window.Index, 0)
			require.Less(t, window.Index, len(window.Samples))
		}
		assert.Equal(t, len(window.Samples), window.Count)

		// Only the newest samples remain.
		_, _, max := window.GetStats()
		assert.Equal(t, 499.0, max)
		t.Logf("✅ Bounded growth validated: 500 samples → Count=%d (capped)", window.Count)
	})

	t.Run("Property_2_Ordering", func(t *testing.T) {
		cases := map[string][]float64{
			"uniform":    {1, 1, 1, 1},
			"increasing": {1, 2, 3, 4, 5},
			"decreasing": {5, 4, 3, 2, 1},
			"spike":      {1, 1, 100, 1, 1},
			"mixed":      {10.5, 20.3, 15.8, 30.2, 5.1},
		}
		for name, samples := range cases {
			t.Run(name, func(t *testing.T) {
				window := &LatencyWindow{}
				for _, s := range samples {
					window.AddSample(s)
				}
				mean, p95, max := window.GetStats()
				assert.LessOrEqual(t, mean, max)
				assert.LessOrEqual(t, p95, max)
			})
		}
	})

	t.Run("Property_3_KnownValues", func(t *testing.T) {
		window := &LatencyWindow{}
		for i := 1; i <= 20; i++ {
			window.AddSample(float64(i))
		}
		mean, p95, max := window.GetStats()
		assert.InDelta(t, 10.5, mean, 1e-9)
		assert.Equal(t, 19.0, p95)
		assert.Equal(t, 20.0, max)
	})

	t.Run("Property_4_EmptyAndReset", func(t *testing.T) {
		window := &LatencyWindow{}
		mean, p95, max := window.GetStats()
		assert.Zero(t, mean)
		assert.Zero(t, p95)
		assert.Zero(t, max)

		window.AddSample(3)
		window.Reset()
		assert.Zero(t, window.Count)
	})
}

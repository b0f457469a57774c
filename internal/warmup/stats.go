// Package warmup measures the cadence of processed frames and keeps a
// window of recent per-frame processing latencies.
package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of mean FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected frame interval.
	jitterStabilityThreshold = 0.20
)

// Stats summarizes frame arrival times.
type Stats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	IsStable       bool
	JitterMean     float64
	JitterStdDev   float64
	JitterMax      float64
}

// CalculateFPSStats computes rate and jitter statistics from frame
// timestamps observed over totalDuration.
//
// A stream is stable when the instantaneous FPS standard deviation is below
// 15% of the mean and the mean jitter is below 20% of the expected interval.
// Fewer than two frames, or no positive interval, is never stable.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *Stats {
	n := len(frameTimes)
	stats := &Stats{FramesReceived: n, Duration: totalDuration}
	if n == 0 || totalDuration <= 0 {
		return stats
	}

	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := frameTimes[i].Sub(frameTimes[i-1]).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return stats
	}

	stats.FPSMin = math.Inf(1)
	var sumSquares float64
	for _, d := range intervals {
		fps := 1.0 / d
		stats.FPSMin = math.Min(stats.FPSMin, fps)
		stats.FPSMax = math.Max(stats.FPSMax, fps)
		diff := fps - stats.FPSMean
		sumSquares += diff * diff
	}
	stats.FPSStdDev = math.Sqrt(sumSquares / float64(len(intervals)))

	expected := 1.0 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	var jitterSum float64
	for i, d := range intervals {
		jitters[i] = math.Abs(d - expected)
		jitterSum += jitters[i]
		stats.JitterMax = math.Max(stats.JitterMax, jitters[i])
	}
	stats.JitterMean = jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - stats.JitterMean
		jitterSumSquares += diff * diff
	}
	stats.JitterStdDev = math.Sqrt(jitterSumSquares / float64(len(jitters)))

	stats.IsStable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expected*jitterStabilityThreshold

	return stats
}

package rectanglify

import (
	"time"

	"github.com/Liamolucko/rectanglify/internal/warmup"
)

// CalculateFPSStats computes output rate and jitter statistics from frame
// timestamps observed over totalDuration.
//
// Stability threshold:
//   - FPS: stddev < 15% of mean FPS
//   - Jitter: mean jitter < 20% of expected interval
//
// Example: 30 FPS mean is stable if stddev < 4.5 and jitter < 0.0067s.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	s := warmup.CalculateFPSStats(frameTimes, totalDuration)

	return &WarmupStats{
		FramesReceived: s.FramesReceived,
		Duration:       s.Duration,
		FPSMean:        s.FPSMean,
		FPSStdDev:      s.FPSStdDev,
		FPSMin:         s.FPSMin,
		FPSMax:         s.FPSMax,
		IsStable:       s.IsStable,
		JitterMean:     s.JitterMean,
		JitterStdDev:   s.JitterStdDev,
		JitterMax:      s.JitterMax,
	}
}

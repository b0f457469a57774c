package warmup

import "sort"

// latencyWindowSize is the number of recent samples kept.
// At 30 fps this covers a little over three seconds.
const latencyWindowSize = 100

// LatencyWindow is a fixed-size ring of recent latency samples in
// milliseconds. It is not safe for concurrent use; callers guard it.
type LatencyWindow struct {
	Samples [latencyWindowSize]float64
	Index   int // next write position
	Count   int // valid samples, capped at len(Samples)
}

// AddSample records one latency, overwriting the oldest when full.
func (w *LatencyWindow) AddSample(ms float64) {
	w.Samples[w.Index] = ms
	w.Index = (w.Index + 1) % len(w.Samples)
	if w.Count < len(w.Samples) {
		w.Count++
	}
}

// GetStats returns the mean, 95th percentile and maximum of the window.
// An empty window returns zeros.
func (w *LatencyWindow) GetStats() (mean, p95, max float64) {
	if w.Count == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, w.Count)
	copy(sorted, w.Samples[:w.Count])
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean = sum / float64(w.Count)
	max = sorted[w.Count-1]

	// Nearest-rank percentile.
	rank := (95*w.Count + 99) / 100
	p95 = sorted[rank-1]
	return mean, p95, max
}

// Reset clears the window.
func (w *LatencyWindow) Reset() {
	*w = LatencyWindow{}
}

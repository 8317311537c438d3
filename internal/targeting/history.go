package targeting

import (
	"gonum.org/v1/gonum/stat"

	"github.com/servo-cam/server/internal/detection"
)

// MeanParams configure mean smoothing of one tracked point.
type MeanParams struct {
	Enabled bool
	// Step is the minimum movement since the newest sample before a new
	// sample is recorded.
	Step float64
	// Depth is how many samples are averaged.
	Depth int
}

// history is a newest-first ring of recent positions.
type history struct {
	xs, ys []float64
}

func (h *history) store(p detection.Point, tolerance float64, depth int) {
	if len(h.xs) > 0 {
		newest := detection.Point{X: h.xs[0], Y: h.ys[0]}
		if newest.Distance(p) < tolerance {
			return
		}
	}
	h.xs = append([]float64{p.X}, h.xs...)
	h.ys = append([]float64{p.Y}, h.ys...)
	if depth < 1 {
		depth = 1
	}
	if len(h.xs) > depth {
		h.xs = h.xs[:depth]
		h.ys = h.ys[:depth]
	}
}

func (h *history) mean() (detection.Point, bool) {
	if len(h.xs) == 0 {
		return detection.Point{}, false
	}
	return detection.Point{X: stat.Mean(h.xs, nil), Y: stat.Mean(h.ys, nil)}, true
}

func (h *history) clear() {
	h.xs, h.ys = nil, nil
}

func (h *history) len() int { return len(h.xs) }

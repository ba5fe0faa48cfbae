// Package scoring converts a freehand path into a circularity score.
package scoring

import (
	"math"

	"github.com/okian/circle/internal/domain/model"
)

// Scoring constants.
const (
	// MinSamples is the fewest points a path needs before it is judged.
	// Shorter paths (clicks, taps) score zero.
	MinSamples = 5
	// MaxScore is the score of a perfectly circular path.
	MaxScore = 100
)

// Result carries the score together with the numbers it was derived from.
type Result struct {
	Score      int
	Samples    int
	MeanRadius float64
	// Deviation is the mean absolute deviation of the point distances from
	// MeanRadius.
	Deviation  float64
	Degenerate bool
}

// Score returns how circular path is around center, in [0, 100].
func Score(path model.Path, center model.Point) int {
	return Evaluate(path, center).Score
}

// Evaluate scores path around center and reports the intermediate values.
func Evaluate(path model.Path, center model.Point) Result {
	n := len(path)
	if n < MinSamples {
		return Result{Samples: n, Degenerate: true}
	}

	// Coordinates near the float64 limit are rescaled by a power of two so
	// that differences and sums stay finite.
	scale := 1.0
	if m := maxAbs(path, center); m > rescaleAbove {
		_, exp := math.Frexp(m)
		scale = math.Ldexp(1, -exp)
	}
	cx, cy := center.X*scale, center.Y*scale

	// Running mean; it stays exact when every distance is equal.
	dists := make([]float64, n)
	var mean float64
	for i, p := range path {
		dists[i] = math.Hypot(p.X*scale-cx, p.Y*scale-cy)
		mean += (dists[i] - mean) / float64(i+1)
	}

	var dev float64
	for _, d := range dists {
		dev += math.Abs(d - mean)
	}
	dev /= float64(n)

	mean /= scale
	dev /= scale

	raw := MaxScore - dev
	if !(raw > 0) { // also catches NaN
		raw = 0
	}
	return Result{
		Score:      int(math.Round(raw)),
		Samples:    n,
		MeanRadius: mean,
		Deviation:  dev,
	}
}

// rescaleAbove is the largest coordinate magnitude scored without rescaling.
const rescaleAbove = 1e150

func maxAbs(path model.Path, center model.Point) float64 {
	m := math.Max(math.Abs(center.X), math.Abs(center.Y))
	for _, p := range path {
		m = math.Max(m, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	return m
}

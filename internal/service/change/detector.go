// Package change decides whether a captured frame differs meaningfully from
// the retained baseline.
//
// The comparison is a coarse motion proxy: both frames are reduced to
// luminance and the share of pixels that changed at all is compared against
// a percentage threshold. Global illumination shifts (clouds, auto exposure)
// change most pixels and therefore count as a scene change.
package change

import (
	"image"

	"github.com/disintegration/imaging"

	"snapwatch/internal/model"
)

const (
	// DefaultThresholdPercent is the share of changed pixels above which a
	// frame counts as different.
	DefaultThresholdPercent = 5.0
	// DefaultEpsilon counts any non-zero luminance difference as changed.
	DefaultEpsilon = 0
)

// Detector compares frames by luminance difference.
type Detector struct {
	ThresholdPercent float64
	// Epsilon is the luminance difference a pixel must exceed to count as changed.
	Epsilon uint8
}

// NewDetector creates a Detector. Epsilon is clamped to [0, 255].
func NewDetector(thresholdPercent float64, epsilon int) *Detector {
	if epsilon < 0 {
		epsilon = 0
	}
	if epsilon > 255 {
		epsilon = 255
	}
	return &Detector{
		ThresholdPercent: thresholdPercent,
		Epsilon:          uint8(epsilon),
	}
}

// Differs compares candidate against baseline. A nil baseline or a
// dimension change always counts as different, with the ratio left
// unmeasured.
func (d *Detector) Differs(baseline, candidate *model.Frame) model.ChangeDecision {
	if baseline == nil {
		return model.ChangeDecision{Differs: true, Reason: model.ReasonNoBaseline}
	}
	if !baseline.SameSize(candidate) {
		return model.ChangeDecision{Differs: true, Reason: model.ReasonSizeChanged}
	}

	ratio := DifferenceRatio(baseline.Image, candidate.Image, d.Epsilon)
	return model.ChangeDecision{
		Differs:  ratio > d.ThresholdPercent,
		Ratio:    ratio,
		Measured: true,
		Reason:   model.ReasonPixelDifference,
	}
}

// DifferenceRatio returns the percentage of pixels whose luminance differs by
// more than epsilon. Both images must have the same dimensions.
func DifferenceRatio(a, b image.Image, epsilon uint8) float64 {
	grayA := imaging.Grayscale(a)
	grayB := imaging.Grayscale(b)

	width := grayA.Bounds().Dx()
	height := grayA.Bounds().Dy()
	total := width * height
	if total == 0 {
		return 0
	}

	changed := 0
	for y := 0; y < height; y++ {
		rowA := grayA.Pix[y*grayA.Stride:]
		rowB := grayB.Pix[y*grayB.Stride:]
		for x := 0; x < width; x++ {
			// Grayscale output stores luminance in every colour channel; R is enough.
			if absDiff(rowA[x*4], rowB[x*4]) > epsilon {
				changed++
			}
		}
	}

	return float64(changed) * 100 / float64(total)
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

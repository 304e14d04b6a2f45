package model

// Reasons attached to a ChangeDecision.
const (
	ReasonNoBaseline      = "no baseline"
	ReasonSizeChanged     = "dimensions changed"
	ReasonPixelDifference = "pixel difference"
)

// ChangeDecision is the outcome of comparing a candidate frame to the baseline.
type ChangeDecision struct {
	Differs bool
	// Ratio is the percentage (0-100) of differing pixels. Only meaningful
	// when Measured is true.
	Ratio    float64
	Measured bool
	Reason   string
}

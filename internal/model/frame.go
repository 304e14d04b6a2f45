package model

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// Frame is one still image captured from the camera. It is never modified
// after capture.
type Frame struct {
	Image      image.Image
	Data       []byte // JPEG encoded
	CapturedAt time.Time
}

// NewFrame builds a Frame from decoded pixels, encoding them as JPEG.
func NewFrame(img image.Image, capturedAt time.Time) (*Frame, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &Frame{
		Image:      img,
		Data:       buf.Bytes(),
		CapturedAt: capturedAt,
	}, nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.Image.Bounds().Dy()
}

// SameSize reports whether both frames have identical dimensions.
func (f *Frame) SameSize(other *Frame) bool {
	return f.Width() == other.Width() && f.Height() == other.Height()
}

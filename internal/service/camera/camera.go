package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"snapwatch/internal/config"
	"snapwatch/internal/logger"
	"snapwatch/internal/model"
)

// staleFrames is how many buffered frames are dropped before each read so the
// capture reflects the scene now rather than when the previous cycle ran.
const staleFrames = 4

// Camera captures still frames from a local video device.
type Camera struct {
	index   int
	capture *gocv.VideoCapture
	mu      sync.Mutex
	logger  *logger.Logger
}

// Open opens the configured device and waits for it to warm up. An error here
// is a startup failure.
func Open(config *config.Config, logger *logger.Logger) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(config.CameraIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", config.CameraIndex, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %d could not be opened", config.CameraIndex)
	}

	if config.CameraWarmup > 0 {
		time.Sleep(config.CameraWarmup)
	}

	logger.Info("📷 Camera %d opened", config.CameraIndex)
	return &Camera{
		index:   config.CameraIndex,
		capture: capture,
		logger:  logger,
	}, nil
}

// Capture reads one frame. It returns an error wrapping model.ErrCapture
// when the device yields nothing or ctx is already done.
func (c *Camera) Capture(ctx context.Context) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCapture, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mat := gocv.NewMat()
	defer mat.Close()

	c.capture.Grab(staleFrames)
	if ok := c.capture.Read(&mat); !ok {
		return nil, fmt.Errorf("%w: camera %d returned no frame", model.ErrCapture, c.index)
	}
	if mat.Empty() {
		return nil, fmt.Errorf("%w: camera %d returned an empty frame", model.ErrCapture, c.index)
	}
	capturedAt := time.Now()

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: converting frame: %w", model.ErrCapture, err)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding frame: %w", model.ErrCapture, err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return &model.Frame{
		Image:      img,
		Data:       data,
		CapturedAt: capturedAt,
	}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture.Close()
}

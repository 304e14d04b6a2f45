package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"snapwatch/internal/config"
	"snapwatch/internal/model"
)

const visionMaxResults = 50

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// VisionClient localizes objects with the Google Cloud Vision API.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS).
type VisionClient struct {
	client        *vision.ImageAnnotatorClient
	annotate      annotateFunc
	minConfidence float64
	timeout       time.Duration
}

// NewVisionClient opens an ImageAnnotator connection.
func NewVisionClient(ctx context.Context, cfg *config.Config) (*VisionClient, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}

	return &VisionClient{
		client: client,
		annotate: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
		minConfidence: cfg.MinConfidence,
		timeout:       cfg.DetectionTimeout,
	}, nil
}

// Detect runs object localization on the frame and returns the objects
// scoring above the minimum confidence.
func (c *VisionClient) Detect(ctx context.Context, frame *model.Frame) (model.DetectionResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: frame.Data},
			Features: []*visionpb.Feature{{
				Type:       visionpb.Feature_OBJECT_LOCALIZATION,
				MaxResults: visionMaxResults,
			}},
		}},
	}

	resp, err := c.annotate(ctx, req)
	if err != nil {
		return nil, classifyVisionError(err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, fmt.Errorf("%w: empty annotate response", model.ErrDetection)
	}

	image := resp.GetResponses()[0]
	if e := image.GetError(); e != nil && codes.Code(e.GetCode()) != codes.OK {
		return nil, classifyVisionError(status.Error(codes.Code(e.GetCode()), e.GetMessage()))
	}

	scores := make([]labelScore, 0, len(image.GetLocalizedObjectAnnotations()))
	for _, obj := range image.GetLocalizedObjectAnnotations() {
		scores = append(scores, labelScore{Label: obj.GetName(), Confidence: float64(obj.GetScore())})
	}
	return filter(scores, c.minConfidence), nil
}

// Close releases the gRPC connection.
func (c *VisionClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// classifyVisionError maps gRPC codes to the detection failure classes.
func classifyVisionError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", model.ErrDetectionUnavailable, err)
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %w", model.ErrDetectionUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrDetection, err)
	}
}

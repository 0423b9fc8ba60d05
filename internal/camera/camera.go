// Package camera defines the Camera interface the capture scheduler
// drives as a black box, plus two implementations: a Linux/libcamera
// backend seam and an always-available simulated backend used for
// development off actual Pi hardware.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrNotOn is returned by Capture when the camera has not been turned on.
var ErrNotOn = errors.New("camera: not turned on")

// UiInfo carries the overlay content: which task fired, its timestamp,
// and the trend-decorated sensor readings for both locations. Glyph
// fields carry the arrow rendered next to each summary, computed from
// the location's temperature delta by TrendGlyph; they're empty when the
// recorder is unavailable, has no sample yet, or has no trend for that
// location.
type UiInfo struct {
	Task            string
	Timestamp       time.Time
	ExternalSummary string
	ExternalGlyph   string
	InternalSummary string
	InternalGlyph   string
}

// TrendGlyph maps a temperature delta to the arrow glyph shown next to a
// reading in the capture overlay.
func TrendGlyph(delta float64) string {
	switch {
	case delta > 1.0:
		return "↑"
	case delta > 0.3:
		return "⇡"
	case delta >= -0.3:
		return "~"
	case delta >= -1.0:
		return "⇣"
	default:
		return "↓"
	}
}

// Image is a captured frame, already JPEG-encoded.
type Image struct {
	JPEG []byte
}

// Size returns len(JPEG), used by the scheduler to accumulate CaptureResult.SavedSize.
func (i Image) Size() int64 { return int64(len(i.JPEG)) }

// Camera is the interface the capture scheduler consumes. Real capture
// transport (libcamera request/buffer plumbing) is out of scope for this
// module; both implementations below satisfy the same contract so the
// scheduler never has to know which one it's driving.
type Camera interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	Capture(ctx context.Context) (Image, error)
	CaptureWithOverlay(ctx context.Context, info UiInfo) (Image, error)
}

const (
	captureWidth  = 4056
	captureHeight = 3040
)

func encodeJPEG(img image.Image) ([]byte, error) {
	return encodeJPEGImpl(img)
}

func newBlankFrame() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, captureWidth, captureHeight))
}

func wrapCaptureErr(name string, err error) error {
	return fmt.Errorf("camera(%s): %w", name, err)
}

package camera

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrUnavailable is returned when the libcamera transport cannot be used
// on this platform. Wiring an actual libcamera request/buffer pipeline is
// explicitly out of scope for this module (spec names the camera
// transport as an external collaborator); this type is the seam a real
// implementation would replace.
var ErrUnavailable = errors.New("camera: libcamera backend unavailable on this platform")

// Libcamera is the hardware-backed Camera implementation. It only
// functions on Linux, and even there requires an external transport this
// module does not provide; TurnOn, Capture and CaptureWithOverlay always
// fail with ErrUnavailable (TurnOff succeeds), so NewDefault always falls
// back to Simulated.
type Libcamera struct {
	mu sync.Mutex
	on bool
}

// NewLibcamera constructs a Libcamera camera. It never fails to
// construct; failures surface from the operations themselves so the
// caller can decide whether to fall back.
func NewLibcamera() *Libcamera {
	return &Libcamera{}
}

// checkPlatform always fails: no in-process libcamera transport is wired,
// even on Linux. Kept as the seam a real implementation would fill in.
func (l *Libcamera) checkPlatform() error {
	return ErrUnavailable
}

func (l *Libcamera) TurnOn(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkPlatform(); err != nil {
		return err
	}
	l.on = true
	return nil
}

func (l *Libcamera) TurnOff(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	return nil
}

func (l *Libcamera) Capture(ctx context.Context) (Image, error) {
	return Image{}, l.checkPlatform()
}

func (l *Libcamera) CaptureWithOverlay(ctx context.Context, info UiInfo) (Image, error) {
	return Image{}, l.checkPlatform()
}

// NewDefault picks Libcamera on Linux, falling back to Simulated if the
// real backend can't turn on — mirroring the teacher's
// battery.DefaultReader probe-then-fallback pattern.
func NewDefault() Camera {
	if runtime.GOOS == "linux" {
		l := NewLibcamera()
		if err := l.TurnOn(context.Background()); err == nil {
			l.TurnOff(context.Background())
			return l
		}
	}
	return NewSimulated(0)
}

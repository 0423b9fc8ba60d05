package camera

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"sync"
)

// Simulated is a Camera implementation that always succeeds, producing a
// procedural gradient frame. It lets the daemon run its full event
// pipeline end to end without real hardware.
type Simulated struct {
	mu  sync.Mutex
	on  bool
	rnd *rand.Rand
}

// NewSimulated constructs a Simulated camera. seed initializes the
// camera's random source, with 0 treated as 1; frames are a fixed
// gradient and do not draw from that source.
func NewSimulated(seed int64) *Simulated {
	src := rand.NewSource(seed)
	if seed == 0 {
		src = rand.NewSource(1)
	}
	return &Simulated{rnd: rand.New(src)}
}

func (s *Simulated) TurnOn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = true
	return nil
}

func (s *Simulated) TurnOff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = false
	return nil
}

func (s *Simulated) frame() *image.NRGBA {
	img := newBlankFrame()
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 4 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 4 {
			c := color.NRGBA{
				R: uint8(x * 255 / bounds.Dx()),
				G: uint8(y * 255 / bounds.Dy()),
				B: uint8((x + y) * 255 / (bounds.Dx() + bounds.Dy())),
				A: 255,
			}
			for dy := 0; dy < 4 && y+dy < bounds.Max.Y; dy++ {
				for dx := 0; dx < 4 && x+dx < bounds.Max.X; dx++ {
					img.SetNRGBA(x+dx, y+dy, c)
				}
			}
		}
	}
	return img
}

func (s *Simulated) Capture(ctx context.Context) (Image, error) {
	s.mu.Lock()
	on := s.on
	s.mu.Unlock()
	if !on {
		return Image{}, ErrNotOn
	}

	data, err := encodeJPEG(s.frame())
	if err != nil {
		return Image{}, wrapCaptureErr("simulated", err)
	}
	return Image{JPEG: data}, nil
}

func (s *Simulated) CaptureWithOverlay(ctx context.Context, info UiInfo) (Image, error) {
	s.mu.Lock()
	on := s.on
	s.mu.Unlock()
	if !on {
		return Image{}, ErrNotOn
	}

	img := s.frame()
	if err := drawOverlay(ctx, img, info); err != nil {
		return Image{}, wrapCaptureErr("simulated", err)
	}
	data, err := encodeJPEG(img)
	if err != nil {
		return Image{}, wrapCaptureErr("simulated", err)
	}
	return Image{JPEG: data}, nil
}

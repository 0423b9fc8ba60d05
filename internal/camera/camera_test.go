package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"strings"
	"testing"
	"time"
)

func TestSimulatedCaptureRequiresTurnOn(t *testing.T) {
	c := NewSimulated(1)
	if _, err := c.Capture(context.Background()); err != ErrNotOn {
		t.Fatalf("expected ErrNotOn before TurnOn, got %v", err)
	}
}

func TestSimulatedCaptureProducesValidJPEG(t *testing.T) {
	c := NewSimulated(1)
	if err := c.TurnOn(context.Background()); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	img, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(img.JPEG)); err != nil {
		t.Fatalf("expected valid JPEG, decode failed: %v", err)
	}
}

func TestSimulatedTurnOffRejectsFurtherCaptures(t *testing.T) {
	c := NewSimulated(1)
	c.TurnOn(context.Background())
	c.TurnOff(context.Background())
	if _, err := c.Capture(context.Background()); err != ErrNotOn {
		t.Fatalf("expected ErrNotOn after TurnOff, got %v", err)
	}
}

func TestTrendGlyphThresholds(t *testing.T) {
	cases := []struct {
		delta float64
		want  string
	}{
		{1.5, "↑"},
		{0.5, "⇡"},
		{0.0, "~"},
		{-0.5, "⇣"},
		{-2.0, "↓"},
	}
	for _, c := range cases {
		if got := TrendGlyph(c.delta); got != c.want {
			t.Errorf("TrendGlyph(%v) = %q, want %q", c.delta, got, c.want)
		}
	}
}

func TestInfoBarHTMLIncludesSummariesAndGlyphs(t *testing.T) {
	info := UiInfo{
		Task:            "[#1 Main]",
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ExternalSummary: "12.3C 45.6%",
		ExternalGlyph:   "↑",
		InternalSummary: "20.1C 30.2%",
		InternalGlyph:   "↓",
	}
	html := infoBarHTML(800, infoBarHeight, info)
	for _, want := range []string{info.Task, info.ExternalSummary, info.ExternalGlyph, info.InternalSummary, info.InternalGlyph} {
		if !strings.Contains(html, want) {
			t.Errorf("infoBarHTML output missing %q", want)
		}
	}
}

func TestLibcameraAlwaysUnavailable(t *testing.T) {
	l := NewLibcamera()
	if err := l.TurnOn(context.Background()); err != ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"heliograph/internal/camera"
)

type fakeCamera struct {
	on    bool
	calls int
}

func (f *fakeCamera) TurnOn(ctx context.Context) error  { f.on = true; return nil }
func (f *fakeCamera) TurnOff(ctx context.Context) error { f.on = false; return nil }
func (f *fakeCamera) Capture(ctx context.Context) (camera.Image, error) {
	return camera.Image{JPEG: []byte("jpeg")}, nil
}
func (f *fakeCamera) CaptureWithOverlay(ctx context.Context, info camera.UiInfo) (camera.Image, error) {
	f.calls++
	return camera.Image{JPEG: []byte("jpeg-with-overlay")}, nil
}

func newTestScheduler(t *testing.T, cam camera.Camera) *Scheduler {
	t.Helper()
	dir := t.TempDir()
	s := New(Config{
		BaseDir:      filepath.Join(dir, "Capture"),
		TimeReserve:  5 * time.Second,
		Location:     time.UTC,
		Latitude:     45.0,
		Longitude:    -73.0,
		SunriseAngle: 90.833,
		SunsetAngle:  90.833,
	}, cam, nil, nil)
	return s
}

func TestCaptureWritesJPEGAndPersistsLastEvent(t *testing.T) {
	cam := &fakeCamera{}
	s := newTestScheduler(t, cam)
	if err := os.MkdirAll(s.taskDir("Main"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ev := &Event{ID: 1, Name: "Main", ShortName: "MN", Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	result, err := s.capture(ev, false)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.EventsCaptured != 1 {
		t.Errorf("EventsCaptured = %d, want 1", result.EventsCaptured)
	}
	if cam.calls != 1 {
		t.Errorf("expected one overlay capture, got %d", cam.calls)
	}
	if s.lastEvent != ev {
		t.Error("expected lastEvent to be updated")
	}
	if _, err := os.Stat(s.lastEventPath()); err != nil {
		t.Errorf("expected last.event to be persisted: %v", err)
	}

	entries, err := os.ReadDir(s.taskDir("Main"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one file in Main/, got %v (%v)", entries, err)
	}
}

func TestCaptureExpiredWritesEventSidecarPerChainMember(t *testing.T) {
	cam := &fakeCamera{}
	s := newTestScheduler(t, cam)
	for _, task := range []string{"Main", "Midday"} {
		if err := os.MkdirAll(s.taskDir(task), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	tail := &Event{ID: 2, Name: "Midday", ShortName: "MY", Timestamp: time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)}
	head := &Event{ID: 1, Name: "Main", ShortName: "MN", Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Overlapping: tail}

	result, err := s.capture(head, true)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.EventsCaptured != 2 {
		t.Errorf("EventsCaptured = %d, want 2", result.EventsCaptured)
	}
	if cam.calls != 0 {
		t.Errorf("expired capture should not touch the camera, got %d calls", cam.calls)
	}

	mainEntries, _ := os.ReadDir(s.taskDir("Main"))
	middayEntries, _ := os.ReadDir(s.taskDir("Midday"))
	if len(mainEntries) != 1 || len(middayEntries) != 1 {
		t.Fatalf("expected one sidecar per chain member, got Main=%d Midday=%d", len(mainEntries), len(middayEntries))
	}
}

func TestFirstTimeInitCreatesTaskDirsAndSyntheticStartEvent(t *testing.T) {
	s := newTestScheduler(t, &fakeCamera{})
	if err := s.bringUp(); err != nil {
		t.Fatalf("bringUp: %v", err)
	}
	for _, task := range TaskNames {
		if info, err := os.Stat(s.taskDir(task)); err != nil || !info.IsDir() {
			t.Errorf("expected task dir %q to exist", task)
		}
	}
	if s.lastEvent == nil || s.lastEvent.Name != "Start" {
		t.Fatalf("expected synthesized Start last-event, got %+v", s.lastEvent)
	}
	if len(s.queue) == 0 {
		t.Error("expected the queue to be populated after first-time init")
	}
}

func TestResumeRequiresExistingTaskDirs(t *testing.T) {
	s := newTestScheduler(t, &fakeCamera{})
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := s.resume(); err == nil {
		t.Fatal("expected resume to fail when task directories are missing")
	}
}

func TestRetireExpiredCallsCaptureAndCounts(t *testing.T) {
	cam := &fakeCamera{}
	s := newTestScheduler(t, cam)
	if err := os.MkdirAll(s.taskDir("Main"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*Event{
		{ID: 1, Name: "Main", ShortName: "MN", Timestamp: now.Add(1 * time.Second)},
		{ID: 2, Name: "Main", ShortName: "MN", Timestamp: now.Add(time.Hour)},
	}

	survivors, expired, err := s.retireExpired(events, now, 5*time.Second)
	if err != nil {
		t.Fatalf("retireExpired: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if len(survivors) != 1 || survivors[0].ID != 2 {
		t.Fatalf("unexpected survivors: %+v", survivors)
	}
}

func TestOverlayInfoWithoutRecorderReturnsBareInfo(t *testing.T) {
	s := newTestScheduler(t, &fakeCamera{})
	ev := &Event{ID: 1, Name: "Sunrise", ShortName: "SR", Timestamp: time.Now()}
	info := s.overlayInfo(ev)
	if info.ExternalSummary != "" || info.InternalSummary != "" {
		t.Errorf("expected empty summaries without a recorder, got %+v", info)
	}
}

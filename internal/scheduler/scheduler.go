package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"heliograph/internal/astro"
	"heliograph/internal/camera"
	"heliograph/internal/display"
	"heliograph/internal/logging"
	"heliograph/internal/recorder"
	"heliograph/internal/timeutil"
)

// CaptureResult reports the outcome of one capture(event, expired)
// invocation: the number of files written (head + overlapping chain),
// elapsed wall time, and total bytes written.
type CaptureResult struct {
	EventsCaptured int
	TimeElapsed    time.Duration
	SavedSize      int64
}

type threadStatus int

const (
	statusIdle threadStatus = iota
	statusRunning
	statusStopped
)

// Scheduler is the capture event pipeline: the central subsystem that
// generates, sorts, coalesces, waits for, and captures events, persisting
// last.event for crash-resume.
type Scheduler struct {
	log zerolog.Logger

	baseDir     string
	timeReserve time.Duration
	loc         *time.Location

	cache                          *astro.DayCache
	latitude, longitude            float64
	sunriseAngle, sunsetAngle      float64

	cam  camera.Camera
	disp *display.Controller
	rec  *recorder.Recorder

	mu        sync.Mutex
	cond      *sync.Cond
	status    threadStatus
	queue     []*Event
	lastEvent *Event

	cancel context.CancelFunc
	done   chan struct{}
}

// Config bundles the values Scheduler needs at construction.
type Config struct {
	BaseDir                    string
	TimeReserve                time.Duration
	Location                   *time.Location
	Latitude, Longitude        float64
	SunriseAngle, SunsetAngle  float64
}

// New constructs a Scheduler. cam, disp, and rec must already be
// constructed (recorder started, display enabled) per the daemon's
// bring-up order.
func New(cfg Config, cam camera.Camera, disp *display.Controller, rec *recorder.Recorder) *Scheduler {
	s := &Scheduler{
		log:          logging.New("scheduler"),
		baseDir:      cfg.BaseDir,
		timeReserve:  cfg.TimeReserve,
		loc:          cfg.Location,
		cache:        astro.NewDayCache(),
		latitude:     cfg.Latitude,
		longitude:    cfg.Longitude,
		sunriseAngle: cfg.SunriseAngle,
		sunsetAngle:  cfg.SunsetAngle,
		cam:          cam,
		disp:         disp,
		rec:          rec,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Started reports whether the capture loop is running.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == statusRunning
}

func (s *Scheduler) taskDir(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *Scheduler) lastEventPath() string {
	return filepath.Join(s.baseDir, "last.event")
}

// bringUp performs first-time init or resume, per spec §4.5.4.
func (s *Scheduler) bringUp() error {
	info, err := os.Stat(s.baseDir)
	if os.IsNotExist(err) {
		return s.firstTimeInit()
	}
	if err != nil {
		return fmt.Errorf("scheduler: stat %s: %w", s.baseDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scheduler: %s exists and is not a directory", s.baseDir)
	}
	return s.resume()
}

func (s *Scheduler) firstTimeInit() error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("scheduler: create %s: %w", s.baseDir, err)
	}
	for _, task := range TaskNames {
		if err := os.MkdirAll(s.taskDir(task), 0o755); err != nil {
			return fmt.Errorf("scheduler: create task dir %s: %w", task, err)
		}
	}

	now := time.Now().In(s.loc).Truncate(time.Second)
	s.lastEvent = &Event{Name: "Start", ShortName: "ST", Timestamp: now}
	if err := SaveEvent(s.lastEventPath(), s.lastEvent); err != nil {
		return fmt.Errorf("scheduler: persist last.event: %w", err)
	}

	_, err := s.runGenerationPipeline(now)
	return err
}

func (s *Scheduler) resume() error {
	for _, task := range TaskNames {
		info, err := os.Stat(s.taskDir(task))
		if err != nil || !info.IsDir() {
			return fmt.Errorf("scheduler: missing task directory %q on resume", task)
		}
	}

	lastEvent, err := LoadEvent(s.lastEventPath(), s.loc)
	if err != nil {
		return fmt.Errorf("scheduler: load last.event: %w", err)
	}
	s.lastEvent = lastEvent

	today := time.Now().In(s.loc)
	for d := dateOnly(lastEvent.Timestamp, s.loc); !d.After(dateOnly(today, s.loc)); d = d.AddDate(0, 0, 1) {
		if _, err := s.runGenerationPipeline(d); err != nil {
			return err
		}
	}
	return nil
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Start brings the scheduler up (first-time init or resume) and launches
// the capture loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == statusRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.bringUp(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.mu.Lock()
	s.status = statusRunning
	s.mu.Unlock()

	go s.captureLoop(ctx)
	return nil
}

// Stop cancels the capture loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.status != statusRunning {
		s.mu.Unlock()
		return
	}
	s.status = statusStopped
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}

	s.mu.Lock()
	s.status = statusIdle
	s.mu.Unlock()
}

func (s *Scheduler) captureLoop(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("capture loop terminated by panic")
			s.mu.Lock()
			s.status = statusIdle
			s.mu.Unlock()
			if s.disp != nil {
				s.disp.UpdateNextEvent(nil)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if len(s.queue) == 0 {
			next := s.lastEvent.Timestamp.AddDate(0, 0, 1)
			if _, err := s.runGenerationPipeline(dateOnly(next, s.loc)); err != nil {
				s.log.Error().Err(err).Msg("generation failed, stopping capture loop")
				s.stopOnError()
				return
			}
			continue
		}

		head := s.queue[0]
		toEvent := time.Until(head.Timestamp)

		if toEvent <= s.timeReserve {
			s.log.Error().Str("event", head.Summary(-1)).Msg("event expired before capture, retiring")
			if _, err := s.capture(head, true); err != nil {
				s.log.Error().Err(err).Msg("failed to retire expired event")
				s.stopOnError()
				return
			}
			s.queue = s.queue[1:]
			continue
		}

		s.log.Info().Dur("in", toEvent).Str("event", head.Summary(-1)).Msg("sleeping to next event")
		if s.disp != nil {
			s.disp.UpdateNextEvent(&display.NextEvent{Name: head.Name, ShortName: head.ShortName, Timestamp: head.Timestamp})
		}

		if timeutil.InterruptibleSleep(ctx, head.Timestamp.Add(-s.timeReserve)) {
			s.publishNone()
			return
		}

		if s.cam != nil {
			if err := s.cam.TurnOn(ctx); err != nil {
				s.log.Error().Err(err).Msg("camera turn on failed")
				s.stopOnError()
				return
			}
		}

		if timeutil.InterruptibleSleep(ctx, head.Timestamp) {
			s.publishNone()
			if s.cam != nil {
				s.cam.TurnOff(ctx)
			}
			return
		}

		chainLen := head.ChainLength()
		msg := fmt.Sprintf("capturing event %s", head.Summary(-1))
		if chainLen > 1 {
			msg = fmt.Sprintf("%s (+%d overlapping)", msg, chainLen-1)
		}
		s.log.Info().Msg(msg)

		result, err := s.capture(head, false)
		if s.cam != nil {
			s.cam.TurnOff(ctx)
		}
		if err != nil {
			s.log.Error().Err(err).Msg("capture failed, stopping capture loop")
			s.stopOnError()
			return
		}
		s.queue = s.queue[1:]

		s.showCaptureSummary(head, result)
	}
}

func (s *Scheduler) stopOnError() {
	s.mu.Lock()
	s.status = statusIdle
	s.mu.Unlock()
	s.publishNone()
}

func (s *Scheduler) publishNone() {
	if s.disp != nil {
		s.disp.UpdateNextEvent(nil)
	}
}

func (s *Scheduler) showCaptureSummary(head *Event, result CaptureResult) {
	if s.disp == nil {
		return
	}
	msg := display.Message{
		{
			Line1: fmt.Sprintf("%-16s", head.Summary(16)),
			Line2: fmt.Sprintf("%s %s", timeutil.ToReadableDuration(result.TimeElapsed, false), timeutil.ToReadableSize(result.SavedSize)),
			Delay: 3 * time.Second,
		},
	}

	if len(s.queue) == 0 {
		next := head.Timestamp.AddDate(0, 0, 1)
		genResult, err := s.runGenerationPipeline(dateOnly(next, s.loc))
		if err != nil {
			s.log.Error().Err(err).Msg("failed to generate next day after drain")
		} else {
			msg = append(msg, display.Frame{
				Line1: fmt.Sprintf("Next day: %d", genResult.Generated),
				Line2: fmt.Sprintf("mapped %d exp %d", genResult.Mapped, genResult.Expired),
				Delay: 3 * time.Second,
			})
		}
	}

	s.disp.ShowMessage(msg)
}

// capture performs the capture(event, expired) operation: walking the
// event's overlapping chain, writing either JPEG images or .event
// placeholder sidecars, and persisting last.event.
func (s *Scheduler) capture(head *Event, expired bool) (CaptureResult, error) {
	start := time.Now()

	var img camera.Image
	if !expired {
		info := s.overlayInfo(head)
		var err error
		if s.cam != nil {
			img, err = s.cam.CaptureWithOverlay(context.Background(), info)
		}
		if err != nil {
			return CaptureResult{}, fmt.Errorf("scheduler: capture image: %w", err)
		}
	}

	var result CaptureResult
	for cur := head; cur != nil; cur = cur.Overlapping {
		path := filepath.Join(s.taskDir(cur.Name), timeutil.ToFilename(cur.Timestamp))
		var size int64
		if expired {
			path += ".event"
			if err := SaveEvent(path, cur); err != nil {
				return result, fmt.Errorf("scheduler: save event sidecar: %w", err)
			}
			if info, err := os.Stat(path); err == nil {
				size = info.Size()
			}
		} else {
			path += ".jpeg"
			if err := os.WriteFile(path, img.JPEG, 0o644); err != nil {
				return result, fmt.Errorf("scheduler: write capture: %w", err)
			}
			size = img.Size()
		}
		result.SavedSize += size
		result.EventsCaptured++
	}

	result.TimeElapsed = time.Since(start)

	s.lastEvent = head
	if err := SaveEvent(s.lastEventPath(), head); err != nil {
		return result, fmt.Errorf("scheduler: persist last.event: %w", err)
	}

	return result, nil
}

func (s *Scheduler) overlayInfo(head *Event) camera.UiInfo {
	info := camera.UiInfo{Task: head.Summary(-1), Timestamp: head.Timestamp}
	if s.rec == nil {
		return info
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	last, ok := s.rec.Last(ctx)
	if !ok {
		return info
	}
	trend, ok := s.rec.Trend(ctx, 60)
	if last.External != nil {
		info.ExternalSummary = fmt.Sprintf("%.1fC %.1f%%", last.External.BMP280.Temperature, last.External.AHT20.Humidity)
		if ok && trend.External != nil {
			info.ExternalGlyph = camera.TrendGlyph(trend.External.AHT20.Temperature)
		}
	}
	if last.Internal != nil {
		info.InternalSummary = fmt.Sprintf("%.1fC %.1f%%", last.Internal.BMP280.Temperature, last.Internal.AHT20.Humidity)
		if ok && trend.Internal != nil {
			info.InternalGlyph = camera.TrendGlyph(trend.Internal.AHT20.Temperature)
		}
	}
	return info
}

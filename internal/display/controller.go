package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"heliograph/internal/logging"
	"heliograph/internal/recorder"
	"heliograph/internal/timeutil"
)

// Frame is one screen of a message sequence: two 16-character lines, a
// display duration, and an optional blink count (0 = show continuously
// for Delay; n>=1 = alternate print/clear n times, each half Delay long).
type Frame struct {
	Line1, Line2 string
	Delay        time.Duration
	Blinks       int
}

// Message is an ordered sequence of frames played back atomically.
type Message []Frame

// NextEvent is the minimal projection of a scheduler event the countdown
// needs: name, short name, and timestamp (not the whole overlap chain).
type NextEvent struct {
	Name, ShortName string
	Timestamp       time.Time
}

// StartupInfo carries the configuration values shown once in the
// first-enable summary message.
type StartupInfo struct {
	HTTPPort                  uint16
	TimeReserveMs             int
	Latitude, Longitude       float64
	SunriseAngle, SunsetAngle float64
}

type threadStatus int

const (
	statusIdle threadStatus = iota
	statusRunning
	statusStopped
)

// Controller arbitrates a periodic status-refresh loop against transient
// message playback, guaranteeing the two never write the device
// concurrently.
type Controller struct {
	log      zerolog.Logger
	device   *Device
	recorder *recorder.Recorder
	startup  StartupInfo

	// updateMu is the display's exclusive-write token: the refresh loop
	// and message playback both hold it for the whole duration of a
	// render, never interleaving bytes.
	updateMu sync.Mutex

	mu             sync.Mutex
	cond           *sync.Cond
	refreshStatus  threadStatus
	messageStatus  threadStatus
	queue          []Message
	nextEvent      *NextEvent
	startupShown   bool
	// ctx is the enable-scoped context passed to refreshLoop, also used
	// by messageLoop/playMessage so a Disable() cancellation interrupts
	// mid-playback sleeps instead of waiting them out.
	ctx context.Context

	refreshDone chan struct{}
	messageDone chan struct{}
	cancel      context.CancelFunc
}

// NewController wires a display device to a recorder (for status-refresh
// readings) and the startup summary values.
func NewController(device *Device, rec *recorder.Recorder, startup StartupInfo) *Controller {
	c := &Controller{
		log:      logging.New("display"),
		device:   device,
		recorder: rec,
		startup:  startup,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Enabled reports whether the refresh loop is running.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshStatus == statusRunning
}

// Enable idempotently turns the display on and starts the refresh loop.
// The very first call additionally shows a one-time configuration summary.
func (c *Controller) Enable(ctx context.Context) {
	c.mu.Lock()
	alreadyRunning := c.refreshStatus == statusRunning
	firstTime := !c.startupShown
	c.startupShown = true
	c.mu.Unlock()

	if alreadyRunning {
		return
	}

	c.updateMu.Lock()
	c.device.Configure(true, false, false)
	c.device.Backlight(true)
	c.updateMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.refreshDone = make(chan struct{})

	c.mu.Lock()
	c.ctx = ctx
	c.refreshStatus = statusRunning
	if firstTime {
		c.enqueueLocked(c.startupMessage())
	}
	c.mu.Unlock()

	go c.refreshLoop(ctx)
}

// Disable stops both loops, clears the screen, and turns off the
// backlight.
func (c *Controller) Disable() {
	c.mu.Lock()
	if c.refreshStatus != statusRunning && c.messageStatus != statusRunning {
		c.mu.Unlock()
		return
	}
	c.refreshStatus = statusStopped
	c.messageStatus = statusStopped
	messageDone := c.messageDone
	c.cond.Broadcast()
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.refreshDone != nil {
		<-c.refreshDone
	}
	if messageDone != nil {
		<-messageDone
	}

	c.updateMu.Lock()
	c.device.Configure(false, false, false)
	c.device.Backlight(false)
	c.device.Clear()
	c.updateMu.Unlock()

	c.mu.Lock()
	c.refreshStatus = statusIdle
	c.messageStatus = statusIdle
	c.mu.Unlock()
}

// ShowMessage enqueues a message for playback, starting the message loop
// if it isn't already running. No-op if the display isn't enabled.
func (c *Controller) ShowMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshStatus != statusRunning {
		return
	}
	c.enqueueLocked(m)
}

func (c *Controller) enqueueLocked(m Message) {
	c.queue = append(c.queue, m)
	if c.messageStatus != statusRunning {
		c.messageStatus = statusRunning
		c.messageDone = make(chan struct{})
		go c.messageLoop(c.ctx, c.messageDone)
	}
}

// UpdateNextEvent sets (or clears) the countdown source. If no message is
// currently playing, the countdown is re-rendered immediately.
func (c *Controller) UpdateNextEvent(ev *NextEvent) {
	c.mu.Lock()
	c.nextEvent = ev
	playing := c.messageStatus == statusRunning
	c.mu.Unlock()

	if !playing {
		c.updateMu.Lock()
		c.renderCountdownAndClock(time.Now())
		c.updateMu.Unlock()
	}
}

func (c *Controller) refreshLoop(ctx context.Context) {
	defer close(c.refreshDone)
	for {
		c.mu.Lock()
		stopped := c.refreshStatus == statusStopped
		c.mu.Unlock()
		if stopped {
			return
		}

		c.updateMu.Lock()
		c.renderStatus(time.Now())
		c.updateMu.Unlock()

		next := timeutil.NextMinute(time.Now())
		if timeutil.InterruptibleSleep(ctx, next) {
			return
		}
	}
}

func (c *Controller) renderStatus(now time.Time) {
	c.renderSensorRows(now)
	c.renderCountdownAndClock(now)
}

func (c *Controller) renderSensorRows(now time.Time) {
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	last, ok := c.recorder.Last(ctx)
	if !ok {
		return
	}
	trend, ok := c.recorder.Trend(ctx, 60)
	if !ok {
		return
	}

	if last.External != nil {
		var symbol byte = '-'
		if trend.External != nil {
			symbol = trendSymbol(trend.External.AHT20.Temperature)
		}
		humidity := timeutil.Limit(last.External.AHT20.Humidity, 0, 99.9)
		line := fmt.Sprintf("%5.1f%c%4.1f%c", last.External.BMP280.Temperature, symbol, humidity, symbol)
		c.device.PrintAt(0, 0, line)
	} else {
		c.device.PrintAt(0, 0, "   FAIL   |")
	}

	if last.Internal != nil {
		var symbol byte = '-'
		if trend.Internal != nil {
			symbol = trendSymbol(trend.Internal.AHT20.Temperature)
		}
		humidity := timeutil.Limit(last.Internal.AHT20.Humidity, 0, 99.9)
		line := fmt.Sprintf("%5.1f%c%4.1f%c", last.Internal.BMP280.Temperature, symbol, humidity, symbol)
		c.device.PrintAt(1, 0, line)
	} else {
		c.device.PrintAt(1, 0, "   FAIL   |")
	}
}

// trendSymbol maps a temperature delta to the custom arrow glyph shown
// next to each reading.
func trendSymbol(delta float64) byte {
	switch {
	case delta > 1.0:
		return byte(UpArrow)
	case delta > 0.3:
		return byte(Up)
	case delta >= -0.3:
		return '-'
	case delta >= -1.0:
		return byte(Down)
	default:
		return byte(DownArrow)
	}
}

func (c *Controller) renderCountdownAndClock(now time.Time) {
	displayNow := now.Add(10 * time.Second)

	c.mu.Lock()
	ev := c.nextEvent
	c.mu.Unlock()

	if ev == nil {
		c.device.PrintAt(0, 11, string([]byte{byte(UndefinedDot), byte(UndefinedDot), byte(UndefinedDot), byte(UndefinedDot), byte(UndefinedDot)}))
	} else {
		remaining := ev.Timestamp.Sub(displayNow)
		minutes := int(remaining / time.Minute)
		if remaining%time.Minute >= 30*time.Second {
			minutes++
		}
		if minutes < 0 {
			minutes = 0
		}
		if minutes > 99 {
			minutes = 99
		}
		c.device.PrintAt(0, 11, fmt.Sprintf("%s%c%02d", ev.ShortName, byte(UndefinedDot), minutes))
	}

	c.device.PrintAt(1, 11, displayNow.Format("15:04"))
}

func (c *Controller) messageLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.mu.Lock()
	if len(c.queue) == 0 {
		c.messageStatus = statusIdle
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	previous := c.device.Snapshot()

	for {
		c.mu.Lock()
		if c.messageStatus == statusStopped {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			break
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if c.playMessage(ctx, msg) {
			return
		}
	}

	c.device.Backlight(false)
	c.device.PrintScreen(previous)
	c.renderCountdownAndClock(time.Now())
	if timeutil.InterruptibleSleep(ctx, time.Now().Add(300*time.Millisecond)) {
		return
	}

	c.mu.Lock()
	c.messageStatus = statusIdle
	c.mu.Unlock()
	c.device.Backlight(true)
}

// playMessage renders a message's frames, sleeping between them with
// timeutil.InterruptibleSleep so a Disable() cancellation interrupts
// playback immediately instead of waiting out the remaining frames. It
// reports whether it was interrupted before finishing.
func (c *Controller) playMessage(ctx context.Context, m Message) bool {
	c.device.Backlight(false)
	c.device.Clear()

	for i, frame := range m {
		c.mu.Lock()
		stopped := c.messageStatus == statusStopped
		c.mu.Unlock()
		if stopped {
			return true
		}

		c.device.PrintAt(0, 0, frame.Line1)
		c.device.PrintAt(1, 0, frame.Line2)

		if frame.Blinks <= 0 {
			if timeutil.InterruptibleSleep(ctx, time.Now().Add(frame.Delay)) {
				return true
			}
		} else {
			half := frame.Delay
			for b := 0; b < frame.Blinks; b++ {
				if timeutil.InterruptibleSleep(ctx, time.Now().Add(half)) {
					return true
				}
				if b+1 != frame.Blinks {
					c.device.Clear()
					if timeutil.InterruptibleSleep(ctx, time.Now().Add(half)) {
						return true
					}
					c.device.PrintAt(0, 0, frame.Line1)
					c.device.PrintAt(1, 0, frame.Line2)
				}
			}
		}

		if i < len(m)-1 {
			c.device.Clear()
			c.device.Backlight(true)
			if timeutil.InterruptibleSleep(ctx, time.Now().Add(300*time.Millisecond)) {
				return true
			}
			c.device.Backlight(false)
		}
	}
	return false
}

func (c *Controller) startupMessage() Message {
	s := c.startup
	return Message{
		{Line1: "  Heliograph  ", Line2: "  starting up  ", Delay: 2 * time.Second},
		{Line1: fmt.Sprintf("HTTP port %5d", s.HTTPPort), Line2: fmt.Sprintf("Reserve %5dms", s.TimeReserveMs), Delay: 2 * time.Second},
		{Line1: fmt.Sprintf("Lat  %8.3f", s.Latitude), Line2: fmt.Sprintf("Lon  %8.3f", s.Longitude), Delay: 2 * time.Second},
		{Line1: fmt.Sprintf("Rise %6.2f%cdeg", s.SunriseAngle, 0xDF), Line2: fmt.Sprintf("Set  %6.2f%cdeg", s.SunsetAngle, 0xDF), Delay: 2 * time.Second},
	}
}

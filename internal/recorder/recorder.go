// Package recorder implements the background periodic sensor sampler: a
// bounded time-series history with trend computation, tolerant of
// per-location sensor failure.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"heliograph/internal/logging"
	"heliograph/internal/sensors"
	"heliograph/internal/timeutil"
)

// MaxHistorySize bounds the in-memory history to one week at one-minute
// resolution.
const MaxHistorySize = 7 * 24 * 60

// MeasurementIterations is the number of readings averaged into each
// sample.
const MeasurementIterations = 5

// Record is a single time-stamped sample from both sensor pairs. A nil
// field means that location's sensor pair failed on this tick; the record
// is still inserted into history.
type Record struct {
	Timestamp time.Time
	External  *sensors.Measurement
	Internal  *sensors.Measurement
}

// Sub returns a record whose timestamp is r2's (the subtrahend, i.e. the
// older sample) and whose fields are populated only where both r and r2
// have a value for that location.
func (r Record) Sub(r2 Record) Record {
	out := Record{Timestamp: r2.Timestamp}
	if r.External != nil && r2.External != nil {
		v := r.External.Sub(*r2.External).Round()
		out.External = &v
	}
	if r.Internal != nil && r2.Internal != nil {
		v := r.Internal.Sub(*r2.Internal).Round()
		out.Internal = &v
	}
	return out
}

// Recorder owns the sampling loop and bounded history. Construct exactly
// once per process (see spec's singleton-by-construction guidance) and
// share the pointer with the display controller and HTTP layer.
type Recorder struct {
	log zerolog.Logger

	external *sensors.Pair
	internal *sensors.Pair

	mu      sync.Mutex
	cond    *sync.Cond
	history []Record

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Recorder bound to the given sensor pairs. Either pair
// may be nil, in which case that location is always recorded as missing
// (useful for development without one of the two buses wired up).
func New(external, internal *sensors.Pair) *Recorder {
	r := &Recorder{
		log:      logging.New("recorder"),
		external: external,
		internal: internal,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the sampling loop. It returns immediately; the loop runs
// until ctx is canceled or Stop is called.
func (r *Recorder) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop cancels the sampling loop and waits for it to exit.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next := timeutil.NextMinute(time.Now())
		if timeutil.InterruptibleSleep(ctx, next) {
			return
		}

		record := r.measureOnce(ctx, next)

		r.mu.Lock()
		r.history = append(r.history, record)
		if len(r.history) > MaxHistorySize {
			r.history = r.history[len(r.history)-MaxHistorySize:]
		}
		r.cond.Broadcast()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}

		wake := timeutil.NextHalfMinuteMark(time.Now())
		if timeutil.InterruptibleSleep(ctx, wake) {
			return
		}
	}
}

func (r *Recorder) measureOnce(ctx context.Context, ts time.Time) Record {
	record := Record{Timestamp: ts}
	var wg sync.WaitGroup

	measure := func(loc sensors.Location, pair *sensors.Pair, dst **sensors.Measurement) {
		defer wg.Done()
		if pair == nil {
			r.log.Warn().Str("location", loc.String()).Msg("no sensor pair configured")
			return
		}
		m, err := pair.Measure(MeasurementIterations)
		if err != nil {
			r.log.Error().Err(err).Str("location", loc.String()).Msg("sensor measurement failed")
			return
		}
		r.mu.Lock()
		*dst = &m
		r.mu.Unlock()
	}

	wg.Add(2)
	go measure(sensors.External, r.external, &record.External)
	go measure(sensors.Internal, r.internal, &record.Internal)
	wg.Wait()

	return record
}

// Last returns the newest record, blocking until at least one exists or
// ctx is canceled.
func (r *Recorder) Last(ctx context.Context) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.history) == 0 {
		if !r.awaitLocked(ctx) {
			return Record{}, false
		}
	}
	return r.history[len(r.history)-1], true
}

// awaitLocked waits on the condition variable while r.mu is held, waking
// early if ctx is canceled. Returns false if ctx was canceled. r.mu must
// be held on entry and is held again on return.
func (r *Recorder) awaitLocked(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.cond.Wait()
	return ctx.Err() == nil
}

// Trend returns the newest record minus the record min(intervalMinutes,
// len-1) positions earlier, blocking until a first record exists.
func (r *Recorder) Trend(ctx context.Context, intervalMinutes int) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.history) == 0 {
		if !r.awaitLocked(ctx) {
			return Record{}, false
		}
	}
	n := len(r.history)
	back := intervalMinutes
	if back > n-1 {
		back = n - 1
	}
	if back < 0 {
		back = 0
	}
	newest := r.history[n-1]
	older := r.history[n-1-back]
	return newest.Sub(older), true
}

// HistorySnapshot returns a copy of the current history, newest last.
func (r *Recorder) HistorySnapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.history))
	copy(out, r.history)
	return out
}

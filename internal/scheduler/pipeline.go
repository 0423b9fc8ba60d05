package scheduler

import (
	"sort"
	"time"
)

// GenerationResult reports the outcome of running the generation pipeline
// for one calendar date.
type GenerationResult struct {
	Date      time.Time
	Generated int
	Mapped    int
	Expired   int
}

// sortByTimestamp sorts events ascending by timestamp (stable, so events
// at identical timestamps keep generator order, which matters for
// deterministic id assignment).
func sortByTimestamp(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// assignIDs assigns 1..N by sorted position.
func assignIDs(events []*Event) {
	for i, e := range events {
		e.ID = i + 1
	}
}

// filterAlreadyCaptured drops every event at or before lastEvent's
// timestamp. lastEvent may be nil (nothing captured yet).
func filterAlreadyCaptured(events []*Event, lastEvent *Event) []*Event {
	if lastEvent == nil {
		return events
	}
	out := events[:0:0]
	for _, e := range events {
		if e.Timestamp.After(lastEvent.Timestamp) {
			out = append(out, e)
		}
	}
	return out
}

// coalesceOverlaps walks the queue with two indices (master, next),
// chaining every event within timeReserve of queue[master] into
// queue[master].Overlapping (earliest-first from the head) and erasing
// them from the queue. Returns the surviving queue and the number of
// events mapped away.
func coalesceOverlaps(events []*Event, timeReserve time.Duration) ([]*Event, int) {
	var out []*Event
	mapped := 0

	master := 0
	for master < len(events) {
		next := master + 1
		for next < len(events) && events[next].Timestamp.Sub(events[master].Timestamp) <= timeReserve {
			next++
		}
		// events[master+1 : next] are all within the window; chain them
		// onto events[master] in reverse iteration order so the chain
		// reads earliest-first starting from the head.
		for i := next - 1; i > master; i-- {
			events[i].Overlapping = events[master].Overlapping
			events[master].Overlapping = events[i]
			mapped++
		}
		out = append(out, events[master])
		master = next
	}

	return out, mapped
}

// retireExpired pops and expires every leading event whose timestamp is
// within timeReserve of now, invoking capture(event, expired=true) for
// each. Returns the surviving queue and the count of events expired
// (head + chain, summed across all popped heads).
func (s *Scheduler) retireExpired(events []*Event, now time.Time, timeReserve time.Duration) ([]*Event, int, error) {
	expired := 0
	for len(events) > 0 {
		head := events[0]
		toEvent := head.Timestamp.Sub(now)
		if toEvent > timeReserve {
			break
		}
		result, err := s.capture(head, true)
		if err != nil {
			return events, expired, err
		}
		expired += result.EventsCaptured
		events = events[1:]
	}
	return events, expired, nil
}

// runGenerationPipeline runs the full generation pipeline for date and
// merges the surviving events into the scheduler's queue.
func (s *Scheduler) runGenerationPipeline(date time.Time) (GenerationResult, error) {
	events, err := GenerateDaily(date, s.cache, s.latitude, s.longitude, s.sunriseAngle, s.sunsetAngle)
	if err != nil {
		return GenerationResult{}, err
	}

	sortByTimestamp(events)
	assignIDs(events)

	events = filterAlreadyCaptured(events, s.lastEvent)
	generated := len(events)

	events, mapped := coalesceOverlaps(events, s.timeReserve)

	events, expired, err := s.retireExpired(events, time.Now(), s.timeReserve)
	if err != nil {
		return GenerationResult{}, err
	}

	s.queue = append(s.queue, events...)
	sortByTimestamp(s.queue)

	result := GenerationResult{Date: date, Generated: generated, Mapped: mapped, Expired: expired}
	s.logGenerationResult(result)
	return result, nil
}

// logGenerationResult mirrors the reference implementation's four-case
// branching: plain, expired-only, mapped-only, or both.
func (s *Scheduler) logGenerationResult(r GenerationResult) {
	ev := s.log.Info().Time("date", r.Date).Int("generated", r.Generated)
	switch {
	case r.Mapped > 0 && r.Expired > 0:
		ev.Int("mapped", r.Mapped).Int("expired", r.Expired).Msg("generated events with overlaps and expirations")
	case r.Expired > 0:
		ev.Int("expired", r.Expired).Msg("generated events, some already expired")
	case r.Mapped > 0:
		ev.Int("mapped", r.Mapped).Msg("generated events with overlaps coalesced")
	default:
		ev.Msg("generated events")
	}
}

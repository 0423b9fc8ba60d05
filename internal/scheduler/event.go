// Package scheduler implements the capture event pipeline: daily
// generation, sorting, id assignment, overlap coalescing, expiration, and
// the crash-resumable capture loop.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"heliograph/internal/astro"
	"heliograph/internal/timeutil"
)

// TaskNames enumerates the capture channels the daily generator produces,
// each with its own subdirectory under Capture/. "Start" is a valid Event
// name (the synthesized first-time last-event marker) but is not a task
// and has no subdirectory.
var TaskNames = []string{"Main", "Midnight", "Midday", "Sunrise", "Sunset", "Day", "Night"}

// Event is a planned or retired capture. Overlapping forms a single,
// acyclic, exclusively-owned chain of events captured together in one
// shutter interval.
type Event struct {
	ID          int
	Name        string
	ShortName   string
	Timestamp   time.Time
	Overlapping *Event
}

// eventJSON is the wire shape of an Event/last.event sidecar.
type eventJSON struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Timestamp string `json:"timestamp"`
}

const isoExtended = "2006-01-02T15:04:05"

// SaveEvent writes the .event JSON sidecar for a single event (not its
// chain) to path.
func SaveEvent(path string, e *Event) error {
	body := eventJSON{
		Name:      e.Name,
		ShortName: e.ShortName,
		Timestamp: e.Timestamp.Format(isoExtended),
	}
	data, err := json.MarshalIndent(body, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEvent reads an .event JSON sidecar (used for last.event on resume).
func LoadEvent(path string, loc *time.Location) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body eventJSON
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	ts, err := time.ParseInLocation(isoExtended, body.Timestamp, loc)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse event timestamp %q: %w", body.Timestamp, err)
	}
	return &Event{Name: body.Name, ShortName: body.ShortName, Timestamp: ts}, nil
}

// Summary renders "[#id Name]", truncating Name to fit maxLength total
// characters when maxLength > 0.
func (e *Event) Summary(maxLength int) string {
	s := fmt.Sprintf("[#%d %s]", e.ID, e.Name)
	if maxLength > 0 && len(s) > maxLength {
		wrapper := len(s) - len(e.Name)
		inner := timeutil.Truncate(e.Name, maxLength-wrapper, true)
		s = fmt.Sprintf("[#%d %s]", e.ID, inner)
	}
	return s
}

// ChainLength returns 1 + the number of overlapping events linked after e.
func (e *Event) ChainLength() int {
	n := 1
	for cur := e.Overlapping; cur != nil; cur = cur.Overlapping {
		n++
	}
	return n
}

// GenerateDaily produces the unsorted, unfiltered set of events for a
// calendar day, per the daily event generator: 60 evenly-spaced Main
// captures, single Midnight/Midday/Sunrise/Sunset captures, 6 evenly
// spaced Day captures between sunrise and sunset, and up to 6 Night
// captures symmetric around the two boundaries (some dropped near the
// day boundary when they would wrap into an adjacent date).
func GenerateDaily(date time.Time, cache *astro.DayCache, latitude, longitude, sunriseAngle, sunsetAngle float64) ([]*Event, error) {
	loc := date.Location()
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)

	var events []*Event

	const mainCount = 60
	mainStep := 24 * time.Hour / mainCount
	for i := 0; i < mainCount; i++ {
		ts := midnight.Add(12*time.Minute + time.Duration(i)*mainStep)
		events = append(events, &Event{ID: -1, Name: "Main", ShortName: "MN", Timestamp: ts})
	}

	events = append(events, &Event{ID: -1, Name: "Midnight", ShortName: "MD", Timestamp: midnight})
	events = append(events, &Event{ID: -1, Name: "Midday", ShortName: "MY", Timestamp: midnight.Add(12 * time.Hour)})

	sunrise, err := cache.Sunrise(midnight, latitude, longitude, sunriseAngle)
	if err != nil {
		return nil, fmt.Errorf("scheduler: sunrise: %w", err)
	}
	sunset, err := cache.Sunset(midnight, latitude, longitude, sunsetAngle)
	if err != nil {
		return nil, fmt.Errorf("scheduler: sunset: %w", err)
	}

	events = append(events, &Event{ID: -1, Name: "Sunrise", ShortName: "SR", Timestamp: sunrise})
	events = append(events, &Event{ID: -1, Name: "Sunset", ShortName: "SS", Timestamp: sunset})

	const dayCount = 6
	dayLen := sunset.Sub(sunrise)
	dayStep := dayLen / dayCount
	for i := 0; i < dayCount; i++ {
		ts := sunrise.Add(dayStep/2 + time.Duration(i)*dayStep)
		events = append(events, &Event{ID: -1, Name: "Day", ShortName: "DY", Timestamp: ts})
	}

	const nightCount = 6
	nightLen := 24*time.Hour - dayLen
	nightStep := nightLen / nightCount
	for i := 0; i < nightCount/2; i++ {
		before := sunrise.Add(-nightStep/2 - time.Duration(i)*nightStep)
		if before.Day() == sunrise.Day() && before.Month() == sunrise.Month() && before.Year() == sunrise.Year() {
			events = append(events, &Event{ID: -1, Name: "Night", ShortName: "NT", Timestamp: before})
		}
		after := sunset.Add(nightStep/2 + time.Duration(i)*nightStep)
		if after.Day() == sunset.Day() && after.Month() == sunset.Month() && after.Year() == sunset.Year() {
			events = append(events, &Event{ID: -1, Name: "Night", ShortName: "NT", Timestamp: after})
		}
	}

	return events, nil
}

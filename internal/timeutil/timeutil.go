// Package timeutil collects small time and formatting helpers shared by the
// scheduler, recorder, and display packages: interruptible sleeping,
// filename formatting, and human-readable duration/size rendering.
package timeutil

import (
	"context"
	"fmt"
	"math"
	"time"
)

// InterruptibleSleep blocks until either the deadline passes or ctx is
// canceled, whichever comes first. It returns true iff it was interrupted
// (ctx canceled before the deadline) — callers treat that as "please stop".
// This is the canonical cancellation primitive used by every background
// loop in the daemon: the recorder between samples, the display between
// refresh cycles and message frames, and the scheduler while waiting for
// an event's timestamp.
func InterruptibleSleep(ctx context.Context, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// NextMinute truncates now to the minute and adds one minute.
func NextMinute(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

// NextHalfMinuteMark returns the next wall-clock instant ending in :30,
// nudged forward a full minute if fewer than 30 seconds remain. The
// recorder sleeps to this mark after each sample, then sleeps again to the
// next whole minute and takes its readings there, so readings are taken at
// the minute boundary rather than mid-minute.
func NextHalfMinuteMark(now time.Time) time.Time {
	base := now.Truncate(time.Minute)
	mark := base.Add(30 * time.Second)
	if !mark.After(now) {
		mark = mark.Add(time.Minute)
	}
	return mark
}

// Round rounds v to n decimal places, normalizing -0 to 0.
func Round(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

// Limit clamps v to [min, max].
func Limit(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

const filenameLayout = "2006.01.02 15-04-05"

// ToFilename renders a timestamp as "YYYY.MM.DD HH-MM-SS[.mmm]", the
// millisecond suffix appearing only when the timestamp carries sub-second
// precision.
func ToFilename(t time.Time) string {
	base := t.Format(filenameLayout)
	ms := t.Nanosecond() / int(time.Millisecond)
	if ms == 0 {
		return base
	}
	return fmt.Sprintf("%s.%03d", base, ms)
}

// ParseFilename recovers the timestamp encoded by ToFilename, in loc.
func ParseFilename(name string, loc *time.Location) (time.Time, error) {
	if len(name) > len(filenameLayout) && name[len(filenameLayout)] == '.' {
		t, err := time.ParseInLocation(filenameLayout+".000", name, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.ParseInLocation(filenameLayout, name, loc)
}

// ToReadableSize renders a byte count using binary (1024) units, matching
// the precision conventions ("12.3 MB") used by the daemon's capture
// summary display messages.
func ToReadableSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), units[exp])
}

// ToReadableDuration renders d as "H:MM:SS" once it reaches an hour, else
// "M:SS", matching the display message clock format.
func ToReadableDuration(d time.Duration, force bool) string {
	total := int64(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if force || h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Truncate shortens s to at most maxLength runes, marking the cut with
// ".." at the end (or the start, if end is false). Used to fit event
// summaries into 16-character display columns.
func Truncate(s string, maxLength int, end bool) string {
	r := []rune(s)
	if maxLength <= 2 {
		if maxLength <= 0 {
			return ""
		}
		out := make([]rune, maxLength)
		for i := range out {
			out[i] = '.'
		}
		return string(out)
	}
	if len(r) <= maxLength {
		return s
	}
	if end {
		return string(r[:maxLength-2]) + ".."
	}
	return ".." + string(r[len(r)-(maxLength-2):])
}

// TimezoneOffsetHours returns the UTC offset of t's own location, rounded
// to the nearest whole hour; for a t in time.Local that is the
// OS-reported offset (spec deliberately avoids a timezone database).
func TimezoneOffsetHours(t time.Time) int {
	_, offsetSec := t.Zone()
	return int(math.Round(float64(offsetSec) / 3600.0))
}

package recorder

import (
	"testing"
	"time"

	"heliograph/internal/sensors"
)

func TestRecordSubMissingPropagation(t *testing.T) {
	extA := sensors.Measurement{AHT20: sensors.AHT20Measurement{Temperature: 22}}
	extB := sensors.Measurement{AHT20: sensors.AHT20Measurement{Temperature: 20}}

	a := Record{Timestamp: time.Unix(200, 0), External: &extA, Internal: nil}
	b := Record{Timestamp: time.Unix(100, 0), External: &extB, Internal: nil}

	diff := a.Sub(b)
	if diff.External == nil {
		t.Fatalf("expected External to be populated when both operands have it")
	}
	if diff.Internal != nil {
		t.Fatalf("expected Internal to stay nil when neither operand has it")
	}
	if !diff.Timestamp.Equal(b.Timestamp) {
		t.Fatalf("expected result timestamp to be the subtrahend's, got %v want %v", diff.Timestamp, b.Timestamp)
	}
	if diff.External.AHT20.Temperature != 2 {
		t.Fatalf("expected warming delta of 2, got %v", diff.External.AHT20.Temperature)
	}
}

func TestRecordSubOneSidedMissing(t *testing.T) {
	extA := sensors.Measurement{}
	a := Record{Timestamp: time.Unix(200, 0), External: &extA}
	b := Record{Timestamp: time.Unix(100, 0), External: nil}

	diff := a.Sub(b)
	if diff.External != nil {
		t.Fatalf("expected External to be nil when only one operand has it")
	}
}

func TestTrendZeroIntervalIsIdentityZero(t *testing.T) {
	r := New(nil, nil)
	m := sensors.Measurement{AHT20: sensors.AHT20Measurement{Temperature: 21.5}}
	rec := Record{Timestamp: time.Unix(1000, 0), External: &m}

	r.mu.Lock()
	r.history = append(r.history, rec)
	r.mu.Unlock()

	trend, ok := r.Trend(nil, 0)
	if !ok {
		t.Fatalf("expected a record to be present")
	}
	if trend.External.AHT20.Temperature != 0 {
		t.Fatalf("expected trend(0) to be zero, got %v", trend.External.AHT20.Temperature)
	}
	if !trend.Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("expected trend(0) timestamp to match the sole record")
	}
}

func TestHistoryBoundEviction(t *testing.T) {
	r := New(nil, nil)
	r.mu.Lock()
	for i := 0; i < MaxHistorySize+10; i++ {
		r.history = append(r.history, Record{Timestamp: time.Unix(int64(i), 0)})
	}
	if len(r.history) > MaxHistorySize {
		r.history = r.history[len(r.history)-MaxHistorySize:]
	}
	r.mu.Unlock()

	if len(r.HistorySnapshot()) != MaxHistorySize {
		t.Fatalf("expected history capped at %d, got %d", MaxHistorySize, len(r.HistorySnapshot()))
	}
}

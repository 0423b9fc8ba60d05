package astro

import (
	"testing"
	"time"
)

func TestSunriseBeforeSunsetMidLatitude(t *testing.T) {
	date := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	sunrise, err := Sunrise(date, 51.5, -0.13, 90.833)
	if err != nil {
		t.Fatalf("sunrise: %v", err)
	}
	sunset, err := Sunset(date, 51.5, -0.13, 90.833)
	if err != nil {
		t.Fatalf("sunset: %v", err)
	}
	if !sunrise.Before(sunset) {
		t.Fatalf("expected sunrise %v before sunset %v", sunrise, sunset)
	}
	if sunrise.Day() != date.Day() || sunset.Day() != date.Day() {
		t.Fatalf("expected both events on the requested day, got sunrise=%v sunset=%v", sunrise, sunset)
	}
}

func TestSunriseEquatorRoughlySixAM(t *testing.T) {
	date := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	sunrise, err := Sunrise(date, 0, 0, 90.833)
	if err != nil {
		t.Fatalf("sunrise: %v", err)
	}
	if sunrise.Hour() < 5 || sunrise.Hour() > 7 {
		t.Fatalf("expected equinox equatorial sunrise near 06:00 UTC, got %v", sunrise)
	}
}

func TestPolarNightReturnsError(t *testing.T) {
	date := time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC)
	if _, err := Sunrise(date, 80, 0, 90.833); err == nil {
		t.Fatalf("expected polar-case error at high latitude midwinter")
	}
}

func TestDayCacheMemoizes(t *testing.T) {
	c := NewDayCache()
	date := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	a, err := c.Sunrise(date, 51.5, -0.13, 90.833)
	if err != nil {
		t.Fatalf("sunrise: %v", err)
	}
	b, err := c.Sunrise(date, 51.5, -0.13, 90.833)
	if err != nil {
		t.Fatalf("sunrise: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("expected memoized result to match: %v != %v", a, b)
	}
}

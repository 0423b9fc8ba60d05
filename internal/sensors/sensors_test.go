package sensors

import "testing"

func TestMeasurementRoundTripArithmetic(t *testing.T) {
	a := Measurement{
		AHT20:  AHT20Measurement{Temperature: 21.234, Humidity: 55.678},
		BMP280: BMP280Measurement{Temperature: 20.111, Pressure: 1013.987},
	}
	b := Measurement{
		AHT20:  AHT20Measurement{Temperature: 20.0, Humidity: 50.0},
		BMP280: BMP280Measurement{Temperature: 19.0, Pressure: 1000.0},
	}

	sum := a.Add(b).Div(2).Round()
	if sum.AHT20.Temperature != 20.62 {
		t.Fatalf("expected averaged rounded temperature 20.62, got %v", sum.AHT20.Temperature)
	}

	diff := a.Sub(b).Round()
	if diff.AHT20.Temperature <= 0 {
		t.Fatalf("expected positive warming trend, got %v", diff.AHT20.Temperature)
	}
}

func TestDivByZeroIsNoop(t *testing.T) {
	m := Measurement{AHT20: AHT20Measurement{Temperature: 5, Humidity: 5}}
	if got := m.Div(0); got != m {
		t.Fatalf("expected Div(0) to be a no-op, got %+v", got)
	}
}

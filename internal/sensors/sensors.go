// Package sensors drives the AHT20 (temperature/humidity) and BMP280
// (temperature/pressure) sensor pair over I2C and provides the
// Measurement arithmetic (subtraction, averaging) the recorder builds
// trends from.
package sensors

import (
	"errors"
	"fmt"
	"time"

	"heliograph/internal/i2cbus"
	"heliograph/internal/timeutil"
)

// Location distinguishes the outdoor ("external") and indoor ("internal")
// sensor pairs, each on its own I2C bus.
type Location int

const (
	External Location = iota
	Internal
)

func (l Location) String() string {
	if l == External {
		return "external"
	}
	return "internal"
}

const (
	aht20Addr  uint16 = 0x38
	bmp280Addr uint16 = 0x77
)

// AHT20Measurement is a single humidity/temperature reading.
type AHT20Measurement struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// BMP280Measurement is a single temperature/pressure reading.
type BMP280Measurement struct {
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
}

func (a AHT20Measurement) add(b AHT20Measurement) AHT20Measurement {
	return AHT20Measurement{Temperature: a.Temperature + b.Temperature, Humidity: a.Humidity + b.Humidity}
}

func (a AHT20Measurement) sub(b AHT20Measurement) AHT20Measurement {
	return AHT20Measurement{Temperature: a.Temperature - b.Temperature, Humidity: a.Humidity - b.Humidity}
}

func (a AHT20Measurement) div(n float64) AHT20Measurement {
	return AHT20Measurement{Temperature: a.Temperature / n, Humidity: a.Humidity / n}
}

func (a AHT20Measurement) round() AHT20Measurement {
	return AHT20Measurement{Temperature: timeutil.Round(a.Temperature, 2), Humidity: timeutil.Round(a.Humidity, 2)}
}

func (b BMP280Measurement) add(o BMP280Measurement) BMP280Measurement {
	return BMP280Measurement{Temperature: b.Temperature + o.Temperature, Pressure: b.Pressure + o.Pressure}
}

func (b BMP280Measurement) sub(o BMP280Measurement) BMP280Measurement {
	return BMP280Measurement{Temperature: b.Temperature - o.Temperature, Pressure: b.Pressure - o.Pressure}
}

func (b BMP280Measurement) div(n float64) BMP280Measurement {
	return BMP280Measurement{Temperature: b.Temperature / n, Pressure: b.Pressure / n}
}

func (b BMP280Measurement) round() BMP280Measurement {
	return BMP280Measurement{Temperature: timeutil.Round(b.Temperature, 2), Pressure: timeutil.Round(b.Pressure, 2)}
}

// Measurement bundles one reading from each sensor.
type Measurement struct {
	AHT20  AHT20Measurement  `json:"aht20"`
	BMP280 BMP280Measurement `json:"bmp280"`
}

// Add returns the pointwise sum.
func (m Measurement) Add(o Measurement) Measurement {
	return Measurement{AHT20: m.AHT20.add(o.AHT20), BMP280: m.BMP280.add(o.BMP280)}
}

// Sub returns the pointwise difference m - o.
func (m Measurement) Sub(o Measurement) Measurement {
	return Measurement{AHT20: m.AHT20.sub(o.AHT20), BMP280: m.BMP280.sub(o.BMP280)}
}

// Div returns m with every field divided by n.
func (m Measurement) Div(n float64) Measurement {
	if n == 0 {
		return m
	}
	return Measurement{AHT20: m.AHT20.div(n), BMP280: m.BMP280.div(n)}
}

// Round rounds every field to 2 decimal places.
func (m Measurement) Round() Measurement {
	return Measurement{AHT20: m.AHT20.round(), BMP280: m.BMP280.round()}
}

// Pair wraps a Location's two devices and knows how to take one averaged
// reading.
type Pair struct {
	aht20  *i2cbus.Device
	bmp280 *i2cbus.Device
}

// OpenPair opens the AHT20 and BMP280 devices on the named I2C bus and
// initializes them (soft reset for the BMP280, init sequence for the
// AHT20).
func OpenPair(busName string) (*Pair, error) {
	aht20, err := i2cbus.Open(busName, aht20Addr)
	if err != nil {
		return nil, fmt.Errorf("sensors: open aht20 on %s: %w", busName, err)
	}
	bmp280, err := i2cbus.Open(busName, bmp280Addr)
	if err != nil {
		aht20.Close()
		return nil, fmt.Errorf("sensors: open bmp280 on %s: %w", busName, err)
	}

	p := &Pair{aht20: aht20, bmp280: bmp280}
	if err := p.init(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pair) init() error {
	if err := p.aht20.Send([]byte{0xBE, 0x08, 0x00}); err != nil {
		return fmt.Errorf("sensors: aht20 init: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := p.bmp280.Send([]byte{0xB6}); err != nil {
		return fmt.Errorf("sensors: bmp280 reset: %w", err)
	}
	time.Sleep(2 * time.Millisecond)
	return nil
}

// Close releases both underlying devices.
func (p *Pair) Close() {
	if p == nil {
		return
	}
	p.aht20.Close()
	p.bmp280.Close()
}

func (p *Pair) measureAHT20() (AHT20Measurement, error) {
	if err := p.aht20.Send([]byte{0xAC, 0x33, 0x00}); err != nil {
		return AHT20Measurement{}, fmt.Errorf("aht20 trigger: %w", err)
	}
	time.Sleep(80 * time.Millisecond)

	buf := make([]byte, 7)
	if err := p.aht20.Receive(nil, buf); err != nil {
		return AHT20Measurement{}, fmt.Errorf("aht20 read: %w", err)
	}
	if buf[0]&0x80 != 0 {
		return AHT20Measurement{}, errors.New("aht20 busy")
	}

	rawHumidity := uint32(buf[1])<<12 | uint32(buf[2])<<4 | uint32(buf[3])>>4
	rawTemp := uint32(buf[3]&0x0F)<<16 | uint32(buf[4])<<8 | uint32(buf[5])

	humidity := float64(rawHumidity) / 1048576.0 * 100.0
	temperature := float64(rawTemp)/1048576.0*200.0 - 50.0

	return AHT20Measurement{Temperature: temperature, Humidity: humidity}, nil
}

func (p *Pair) readCalibReg16u(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := p.bmp280.Receive([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func (p *Pair) readCalibReg16s(reg byte) (int16, error) {
	v, err := p.readCalibReg16u(reg)
	return int16(v), err
}

func (p *Pair) measureBMP280() (BMP280Measurement, error) {
	if err := p.bmp280.Send([]byte{0xF4, 0b11101001}); err != nil {
		return BMP280Measurement{}, fmt.Errorf("bmp280 trigger: %w", err)
	}
	time.Sleep(50 * time.Millisecond)

	digT1, err := p.readCalibReg16u(0x88)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digT2, err := p.readCalibReg16s(0x8A)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digT3, err := p.readCalibReg16s(0x8C)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP1, err := p.readCalibReg16u(0x8E)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP2, err := p.readCalibReg16s(0x90)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP3, err := p.readCalibReg16s(0x92)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP4, err := p.readCalibReg16s(0x94)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP5, err := p.readCalibReg16s(0x96)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP6, err := p.readCalibReg16s(0x98)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP7, err := p.readCalibReg16s(0x9A)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP8, err := p.readCalibReg16s(0x9C)
	if err != nil {
		return BMP280Measurement{}, err
	}
	digP9, err := p.readCalibReg16s(0x9E)
	if err != nil {
		return BMP280Measurement{}, err
	}

	tempBuf := make([]byte, 3)
	if err := p.bmp280.Receive([]byte{0xFA}, tempBuf); err != nil {
		return BMP280Measurement{}, err
	}
	rawTemp := (int32(tempBuf[0])<<16 | int32(tempBuf[1])<<8 | int32(tempBuf[2])) >> 4

	presBuf := make([]byte, 3)
	if err := p.bmp280.Receive([]byte{0xF7}, presBuf); err != nil {
		return BMP280Measurement{}, err
	}
	rawPressure := (int32(presBuf[0])<<16 | int32(presBuf[1])<<8 | int32(presBuf[2])) >> 4

	var1 := (float64(rawTemp)/16384.0 - float64(digT1)/1024.0) * float64(digT2)
	var2 := (float64(rawTemp)/131072.0 - float64(digT1)/8192.0) * (float64(rawTemp)/131072.0 - float64(digT1)/8192.0) * float64(digT3)
	fineTemperature := var1 + var2
	temperature := fineTemperature / 5120.0

	pv1 := fineTemperature/2.0 - 64000.0
	pv2 := pv1 * pv1 * float64(digP6) / 32768.0
	pv2 = pv2 + pv1*float64(digP5)*2.0
	pv2 = pv2/4.0 + float64(digP4)*65536.0
	pv1 = (float64(digP3)*pv1*pv1/524288.0 + float64(digP2)*pv1) / 524288.0
	pv1 = (1.0 + pv1/32768.0) * float64(digP1)

	var pressure float64
	if pv1 == 0 {
		pressure = 0
	} else {
		pressure = 1048576.0 - float64(rawPressure)
		pressure = (pressure - pv2/4096.0) * 6250.0 / pv1
		pv1 = float64(digP9) * pressure * pressure / 2147483648.0
		pv2 = pressure * float64(digP8) / 32768.0
		pressure = pressure + (pv1+pv2+float64(digP7))/16.0
		pressure = pressure / 100.0 // Pa -> hPa
	}

	return BMP280Measurement{Temperature: temperature, Pressure: pressure}, nil
}

// Measure takes `iterations` readings from both devices and returns their
// average, rounded to 2 decimals.
func (p *Pair) Measure(iterations int) (Measurement, error) {
	if iterations <= 0 {
		iterations = 1
	}
	var acc Measurement
	for i := 0; i < iterations; i++ {
		aht20, err := p.measureAHT20()
		if err != nil {
			return Measurement{}, fmt.Errorf("aht20: %w", err)
		}
		bmp280, err := p.measureBMP280()
		if err != nil {
			return Measurement{}, fmt.Errorf("bmp280: %w", err)
		}
		acc = acc.Add(Measurement{AHT20: aht20, BMP280: bmp280})
	}
	return acc.Div(float64(iterations)).Round(), nil
}

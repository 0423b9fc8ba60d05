// Package i2cbus centralizes access to the two I2C buses the daemon talks
// to (an "external" bus for the outdoor sensor pair and an "internal" bus
// for the indoor sensor pair and the character display) and serializes
// every transaction with a single process-wide mutex, since periph.io
// I2C devices are not safe for concurrent use from multiple goroutines
// and the sensor recorder and display controller run on independent
// goroutines that may want the bus at the same instant.
package i2cbus

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Mutex serializes all I2C transactions across the process. Every Device
// wraps its Tx calls with this lock, so callers never need to take it
// directly.
var Mutex sync.Mutex

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		if runtime.GOOS != "linux" {
			hostErr = errors.New("i2cbus: periph.io host is only supported on linux")
			return
		}
		_, hostErr = host.Init()
	})
	return hostErr
}

// Device is a thin, mutex-guarded wrapper around a periph.io i2c.Dev.
type Device struct {
	bus  i2c.BusCloser
	dev  *i2c.Dev
	name string
	addr uint16
}

// Open opens the named I2C bus (empty string selects periph's default) and
// binds a device at addr. The bus identifier corresponds directly to the
// config.json "i2c_ports" values (e.g. "i2c-1", "i2c-3").
func Open(busName string, addr uint16) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2cbus: open %q: %w", busName, err)
	}
	return &Device{
		bus:  bus,
		dev:  &i2c.Dev{Bus: bus, Addr: addr},
		name: busName,
		addr: addr,
	}, nil
}

// Close releases the underlying bus handle.
func (d *Device) Close() error {
	if d == nil || d.bus == nil {
		return nil
	}
	return d.bus.Close()
}

// Send writes w to the device with no expected response.
func (d *Device) Send(w []byte) error {
	Mutex.Lock()
	defer Mutex.Unlock()
	return d.dev.Tx(w, nil)
}

// Receive writes w (typically a register address) then reads len(r) bytes
// into r in a single locked transaction.
func (d *Device) Receive(w []byte, r []byte) error {
	Mutex.Lock()
	defer Mutex.Unlock()
	return d.dev.Tx(w, r)
}

// String identifies the device for logging.
func (d *Device) String() string {
	return fmt.Sprintf("%s@0x%02x", d.name, d.addr)
}

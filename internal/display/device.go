// Package display drives a 2x16 character LCD over an HD44780-compatible
// PCF8574 I2C backpack, plus the two-thread controller that arbitrates a
// periodic status refresh against transient message playback.
package display

import (
	"fmt"
	"time"

	"heliograph/internal/i2cbus"
)

// Screen is the two-row, sixteen-column character buffer written to the
// device.
type Screen [2][16]byte

// CustomCharacter glyph codes uploaded into CGRAM at Init time.
type CustomCharacter byte

const (
	HappyFace CustomCharacter = iota + 1
	SadFace
	UndefinedDot
	Up
	Down
	UpArrow
	DownArrow
)

var customGlyphs = map[CustomCharacter][8]byte{
	HappyFace:    {0x00, 0x0A, 0x00, 0x04, 0x00, 0x11, 0x0E, 0x00},
	SadFace:      {0x00, 0x0A, 0x00, 0x00, 0x0E, 0x11, 0x00, 0x00},
	UndefinedDot: {0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00},
	Up:           {0x04, 0x0E, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	Down:         {0x00, 0x00, 0x00, 0x00, 0x00, 0x0E, 0x04, 0x00},
	UpArrow:      {0x04, 0x0E, 0x1F, 0x04, 0x04, 0x04, 0x04, 0x00},
	DownArrow:    {0x04, 0x04, 0x04, 0x04, 0x1F, 0x0E, 0x04, 0x00},
}

// PCF8574 pin bit assignments in the byte written to the expander.
const (
	pinRS      byte = 1 << 0
	pinRW      byte = 1 << 1
	pinEnable  byte = 1 << 2
	pinBacklit byte = 1 << 3
)

const (
	cmdClearDisplay   byte = 0x01
	cmdReturnHome     byte = 0x02
	cmdEntryModeSet   byte = 0x04
	cmdDisplayControl byte = 0x08
	cmdFunctionSet    byte = 0x20
	cmdSetCGRAMAddr   byte = 0x40
	cmdSetDDRAMAddr   byte = 0x80
)

// transport is the minimal surface Device needs from the I2C layer,
// narrowed from *i2cbus.Device so tests can substitute an in-memory fake
// for the diff-printing logic without real hardware.
type transport interface {
	Send([]byte) error
	Close() error
}

// Device is the low-level HD44780-over-PCF8574 driver: 4-bit nibble
// writes, custom character upload, and a diff-aware Print that only
// touches columns whose target byte differs from the in-memory cache.
// This keeps I2C traffic to a minimum, since the bus is shared with the
// sensor pair on the same header.
type Device struct {
	bus       transport
	backlight bool

	cache  Screen
	row    int
	column int
}

// Open initializes the display at the PCF8574's usual address (0x3F) on
// the named I2C bus.
func Open(busName string) (*Device, error) {
	bus, err := i2cbus.Open(busName, 0x3F)
	if err != nil {
		return nil, fmt.Errorf("display: open: %w", err)
	}
	return newDevice(bus)
}

func newDevice(bus transport) (*Device, error) {
	d := &Device{bus: bus, backlight: true}
	if err := d.init(); err != nil {
		bus.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying I2C device.
func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	return d.bus.Close()
}

func (d *Device) init() error {
	// PCF8574 reset dance: force 8-bit mode three times, then drop to
	// 4-bit mode, matching the HD44780 datasheet init-by-instruction
	// sequence for an unknown starting state.
	for _, nibble := range []byte{0b0011, 0b0011, 0b0011, 0b0010} {
		if err := d.writeNibble(nibble, true); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}

	if err := d.sendByte(cmdFunctionSet|0b1000, true); err != nil { // 4-bit, 2-line, 5x8
		return err
	}
	if err := d.sendByte(cmdEntryModeSet|0b010, true); err != nil { // increment, no shift
		return err
	}
	if err := d.initCustomCharacters(); err != nil {
		return err
	}
	if err := d.Clear(); err != nil {
		return err
	}
	return d.Configure(true, false, false)
}

func (d *Device) initCustomCharacters() error {
	for code, glyph := range customGlyphs {
		if err := d.sendByte(cmdSetCGRAMAddr|(byte(code)<<3), true); err != nil {
			return err
		}
		for _, row := range glyph {
			if err := d.sendByte(row, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeNibble sends a raw 4-bit nibble (given in bits 0-3 and shifted
// into bits 4-7 here) with an enable pulse.
func (d *Device) writeNibble(nibble byte, instruction bool) error {
	data := nibble << 4
	if !instruction {
		data |= pinRS
	}
	if d.backlight {
		data |= pinBacklit
	}
	return d.enablePulse(data)
}

func (d *Device) enablePulse(data byte) error {
	if err := d.bus.Send([]byte{data | pinEnable}); err != nil {
		return err
	}
	time.Sleep(500 * time.Microsecond)
	if err := d.bus.Send([]byte{data &^ pinEnable}); err != nil {
		return err
	}
	time.Sleep(500 * time.Microsecond)
	return nil
}

// sendByte splits a byte into high/low nibbles and writes both, setting
// RS according to instruction (false = data, true = command register in
// this driver's convention... note: HD44780 RS=0 selects the instruction
// register, RS=1 selects data — see the call sites below).
func (d *Device) sendByte(b byte, instruction bool) error {
	rs := pinRS
	if instruction {
		rs = 0
	}
	backlight := byte(0)
	if d.backlight {
		backlight = pinBacklit
	}

	high := (b & 0xF0) | rs | backlight
	low := ((b << 4) & 0xF0) | rs | backlight

	if err := d.enablePulse(high); err != nil {
		return err
	}
	return d.enablePulse(low)
}

// Backlight toggles the backlight, sending nothing if the state is
// unchanged.
func (d *Device) Backlight(on bool) error {
	if d.backlight == on {
		return nil
	}
	d.backlight = on
	data := byte(0)
	if on {
		data = pinBacklit
	}
	return d.bus.Send([]byte{data})
}

// Configure sets display-on, cursor, and blinking-cursor bits.
func (d *Device) Configure(on, cursor, blink bool) error {
	b := cmdDisplayControl
	if on {
		b |= 0b100
	}
	if cursor {
		b |= 0b010
	}
	if blink {
		b |= 0b001
	}
	return d.sendByte(b, true)
}

// Clear erases the device and the in-memory cache, and resets the cursor.
func (d *Device) Clear() error {
	if err := d.sendByte(cmdClearDisplay, true); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	for r := range d.cache {
		for c := range d.cache[r] {
			d.cache[r][c] = ' '
		}
	}
	d.row, d.column = 0, 0
	return nil
}

// Home returns the cursor to (0,0) without clearing.
func (d *Device) Home() error {
	if err := d.sendByte(cmdReturnHome, true); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	d.row, d.column = 0, 0
	return nil
}

// Position moves the cursor, clamping row to [0,1] and column to [0,16].
func (d *Device) Position(row, column int) error {
	if row < 0 {
		row = 0
	}
	if row > 1 {
		row = 1
	}
	if column < 0 {
		column = 0
	}
	if column > 16 {
		column = 16
	}
	d.row, d.column = row, column

	addr := column
	if row == 1 {
		addr += 0x40
	}
	return d.sendByte(cmdSetDDRAMAddr|byte(addr), true)
}

func (d *Device) printByte(ch byte) error {
	if err := d.sendByte(ch, false); err != nil {
		return err
	}
	if d.column < 16 {
		d.cache[d.row][d.column] = ch
		d.column++
	}
	return nil
}

// Print writes s starting at the cursor's logical position, skipping any
// run of characters that already match the cache. A Position command is
// sent only right before a byte is actually written (at the start of the
// call or after a skipped run), so reprinting unchanged content sends
// nothing to the device. After a trailing skip the logical column moves
// past the skipped characters; the device's own address counter is left
// where the last write put it.
func (d *Device) Print(s string) error {
	row, col := d.row, d.column
	skipping := true

	for i := 0; i < len(s) && col < 16; i++ {
		target := s[i]
		if d.cache[row][col] == target {
			skipping = true
			col++
			d.column = col
			continue
		}
		if skipping {
			if err := d.Position(row, col); err != nil {
				return err
			}
			skipping = false
		}
		if err := d.printByte(target); err != nil {
			return err
		}
		col = d.column
	}
	return nil
}

// PrintAt moves the logical cursor to (row, column), clamped the same way
// Position clamps it, then prints s. No command reaches the device unless
// some byte of s differs from the cache.
func (d *Device) PrintAt(row, column int, s string) error {
	d.row, d.column = min(max(row, 0), 1), min(max(column, 0), 16)
	return d.Print(s)
}

// PrintScreen writes both rows of scr.
func (d *Device) PrintScreen(scr Screen) error {
	if err := d.PrintAt(0, 0, string(scr[0][:])); err != nil {
		return err
	}
	return d.PrintAt(1, 0, string(scr[1][:]))
}

// Snapshot returns the current in-memory cache (what the device should be
// displaying, if every write succeeded).
func (d *Device) Snapshot() Screen {
	return d.cache
}

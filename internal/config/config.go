// Package config loads, validates, and generates the daemon's JSON
// configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Common holds process-wide settings not tied to a specific subsystem.
type Common struct {
	HTTPPort    uint16 `json:"http_port"`
	TimeReserve int    `json:"time_reserve" validate:"gte=0"`
}

// I2CPorts names the Linux I2C bus device for each sensor location.
type I2CPorts struct {
	External string `json:"external" validate:"required"`
	Internal string `json:"internal" validate:"required"`
}

// Location is the site's geographic coordinates, used for sunrise/sunset
// computation.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Sun holds the twilight angles used to define "sunrise" and "sunset".
// 90.833 is the standard atmospheric-refraction-corrected horizon angle;
// 80 and 94.7 bound the accepted civil/nautical/astronomical range.
type Sun struct {
	SunriseAngle float64 `json:"sunrise_angle" validate:"gte=80,lte=94.7"`
	SunsetAngle  float64 `json:"sunset_angle" validate:"gte=80,lte=94.7"`
}

// Config is the top-level, on-disk configuration document.
type Config struct {
	Common   Common   `json:"common" validate:"required"`
	I2CPorts I2CPorts `json:"i2c_ports" validate:"required"`
	Location Location `json:"location" validate:"required"`
	Sun      Sun      `json:"sun" validate:"required"`
}

// Default returns the sample configuration written by --generate.
func Default() *Config {
	return &Config{
		Common: Common{
			HTTPPort:    80,
			TimeReserve: 5000,
		},
		I2CPorts: I2CPorts{
			External: "i2c-1",
			Internal: "i2c-3",
		},
		Location: Location{
			Latitude:  0,
			Longitude: 0,
		},
		Sun: Sun{
			SunriseAngle: 90.833,
			SunsetAngle:  90.833,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation over the config and returns a
// combined error naming every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msg := "invalid configuration:"
	for _, fe := range verrs {
		msg += fmt.Sprintf(" %s=%v fails %q;", fe.Namespace(), fe.Value(), fe.Tag())
	}
	return errors.New(msg)
}

// Load reads and validates the configuration file at path. It does not
// create a missing file — use Generate for that, invoked explicitly via
// the --generate flag.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s does not exist, run with --generate first", path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Generate writes a fresh sample configuration to path, refusing to
// overwrite an existing file. Written atomically via a temp file in the
// same directory, then renamed into place with 0600 permissions.
func Generate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists, refusing to overwrite", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(Default(), "", "    ")
	if err != nil {
		return fmt.Errorf("config: marshal sample: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".heliograph-config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("config: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// Summary renders a short human-readable description of the loaded
// configuration, shown once at startup and in the display's startup
// message.
func (c *Config) Summary() string {
	return fmt.Sprintf(
		"http_port=%d time_reserve=%dms i2c(ext=%s,int=%s) lat=%.4f lon=%.4f sunrise_angle=%.3f sunset_angle=%.3f",
		c.Common.HTTPPort, c.Common.TimeReserve,
		c.I2CPorts.External, c.I2CPorts.Internal,
		c.Location.Latitude, c.Location.Longitude,
		c.Sun.SunriseAngle, c.Sun.SunsetAngle,
	)
}

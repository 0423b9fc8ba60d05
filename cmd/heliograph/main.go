// Command heliograph runs the timelapse capture daemon: it samples
// environmental sensors, drives a two-line status display, and captures
// images on an astronomically-derived daily schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heliograph/internal/camera"
	"heliograph/internal/config"
	"heliograph/internal/display"
	"heliograph/internal/httpapi"
	"heliograph/internal/logging"
	"heliograph/internal/recorder"
	"heliograph/internal/scheduler"
	"heliograph/internal/sensors"
)

const defaultConfigPath = "/etc/heliograph/config.json"

type flags struct {
	help       bool
	generate   bool
	forceColor bool
	configPath string
}

func parseFlags() flags {
	var f flags
	flag.BoolVar(&f.help, "h", false, "show usage and exit")
	flag.BoolVar(&f.help, "help", false, "show usage and exit")
	flag.BoolVar(&f.generate, "g", false, "write a sample configuration file and exit")
	flag.BoolVar(&f.generate, "generate", false, "write a sample configuration file and exit")
	flag.BoolVar(&f.forceColor, "fc", false, "force colored log output even when stderr is not a terminal")
	flag.BoolVar(&f.forceColor, "force-color", false, "force colored log output even when stderr is not a terminal")
	flag.StringVar(&f.configPath, "config", defaultConfigPath, "path to the configuration file")
	flag.Parse()
	return f
}

func main() {
	os.Exit(runRecovered())
}

// runRecovered wraps run's body with a top-level recover so an unhandled
// panic during startup or shutdown exits -1 instead of falling through to
// the runtime's default panic handler.
func runRecovered() (code int) {
	defer func() {
		if r := recover(); r != nil {
			log := logging.New("main")
			log.Error().Interface("panic", r).Msg("unhandled panic")
			code = -1
		}
	}()
	return run()
}

func run() int {
	f := parseFlags()

	if f.help {
		flag.Usage()
		return 0
	}

	logging.Init(f.forceColor)
	log := logging.New("main")

	if f.generate {
		if err := config.Generate(f.configPath); err != nil {
			log.Error().Err(err).Msg("failed to generate configuration")
			return 1
		}
		fmt.Printf("wrote sample configuration to %s\n", f.configPath)
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	log.Info().Str("summary", cfg.Summary()).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
		cancel()
	}()

	externalPair, err := sensors.OpenPair(cfg.I2CPorts.External)
	if err != nil {
		log.Warn().Err(err).Msg("external sensor pair unavailable")
	}
	internalPair, err := sensors.OpenPair(cfg.I2CPorts.Internal)
	if err != nil {
		log.Warn().Err(err).Msg("internal sensor pair unavailable")
	}
	defer externalPair.Close()
	defer internalPair.Close()

	rec := recorder.New(externalPair, internalPair)
	rec.Start(ctx)
	defer rec.Stop()

	displayDevice, err := display.Open(cfg.I2CPorts.Internal)
	var disp *display.Controller
	if err != nil {
		log.Warn().Err(err).Msg("display unavailable, continuing without it")
	} else {
		disp = display.NewController(displayDevice, rec, display.StartupInfo{
			HTTPPort:      cfg.Common.HTTPPort,
			TimeReserveMs: cfg.Common.TimeReserve,
			Latitude:      cfg.Location.Latitude,
			Longitude:     cfg.Location.Longitude,
			SunriseAngle:  cfg.Sun.SunriseAngle,
			SunsetAngle:   cfg.Sun.SunsetAngle,
		})
		disp.Enable(ctx)
		defer disp.Disable()
	}

	cam := camera.NewDefault()

	sched := scheduler.New(scheduler.Config{
		BaseDir:      "Capture",
		TimeReserve:  time.Duration(cfg.Common.TimeReserve) * time.Millisecond,
		Location:     time.Local,
		Latitude:     cfg.Location.Latitude,
		Longitude:    cfg.Location.Longitude,
		SunriseAngle: cfg.Sun.SunriseAngle,
		SunsetAngle:  cfg.Sun.SunsetAngle,
	}, cam, disp, rec)

	if err := sched.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start capture scheduler")
		return 1
	}
	defer sched.Stop()

	api := httpapi.New(ctx, fmt.Sprintf(":%d", cfg.Common.HTTPPort), rec, disp, sched)
	api.Start()
	defer api.Stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return 0
}

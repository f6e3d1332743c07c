// Command irrigatord is the irrigation controller daemon: it wires the
// persistent store, GPIO driver, actuator, executor, scheduler, kernel,
// connectivity supplier, watchdog and HTTP adapter together and runs until
// asked to shut down.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/filippods/irrigazione5/internal/actuator"
	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/config"
	"github.com/filippods/irrigazione5/internal/connectivity"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/executor"
	"github.com/filippods/irrigazione5/internal/gpio"
	"github.com/filippods/irrigazione5/internal/httpapi"
	"github.com/filippods/irrigazione5/internal/kernel"
	"github.com/filippods/irrigazione5/internal/logsink"
	"github.com/filippods/irrigazione5/internal/scheduler"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/filippods/irrigazione5/internal/watchdog"
	"github.com/filippods/irrigazione5/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("starting irrigatord")

	s := store.New(store.Config{DataDir: cfg.DataDir, Log: log})
	if cfg.FactorySeedPath != "" {
		s = s.WithFactorySeed(cfg.FactorySeedPath)
	}

	gpioDriver, err := newGPIODriver(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize GPIO driver")
	}

	sysClock := clock.NewSystem()
	bus := events.NewBus(log)

	exec := wireExecutionPlant(s, gpioDriver, sysClock, bus, log)

	sink := logsink.New(logsink.Config{Store: s, Clock: sysClock, Events: bus, Log: log})
	sink.Subscribe(bus)

	radio := connectivity.NewShellRadio(cfg.WifiInterface)
	conn := connectivity.New(connectivity.Config{
		Radio: radio, Store: s, Clock: sysClock, Events: bus, Settings: s.LoadSettings, Log: log,
	})
	go conn.Run()

	wd := watchdog.New(log)
	if err := wd.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start watchdog")
	}

	if err := exec.kernel.Boot(); err != nil {
		log.Fatal().Err(err).Msg("failed to boot kernel")
	}

	router := httpapi.NewRouter(httpapi.Config{
		Kernel: exec.kernel, Connectivity: conn, Events: bus, Log: log,
	})
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	conn.Stop()
	wd.Stop()
	exec.kernel.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}
}

// plant holds the command/query surface (the kernel) that wireExecutionPlant
// builds; the actuator, executor and scheduler are reachable only through it.
type plant struct {
	kernel *kernel.Kernel
}

func wireExecutionPlant(s *store.Store, gpioDriver gpio.Driver, clk clock.Clock, bus *events.Bus, log zerolog.Logger) *plant {
	act := actuator.New(actuator.Config{
		GPIO:     gpioDriver,
		Clock:    clk,
		Settings: s.LoadSettings,
		Events:   bus,
		Log:      log,
	})
	exec := executor.New(executor.Config{
		Actuator: act, Store: s, Clock: clk, Settings: s.LoadSettings, Events: bus, Log: log,
	})
	sched := scheduler.New(scheduler.Config{Store: s, Executor: exec, Clock: clk, Events: bus, Log: log})
	k := kernel.New(kernel.Config{Store: s, Actuator: act, Executor: exec, Scheduler: sched, Events: bus, Log: log})
	return &plant{kernel: k}
}

func newGPIODriver(cfg *config.Config, log zerolog.Logger) (gpio.Driver, error) {
	client, err := gpio.NewMCUClient(cfg.MCUSocketPath, log)
	if errors.Is(err, gpio.ErrSocketNotFound) {
		// Relay control is disabled (already logged); pin writes go to an
		// in-memory driver so the daemon keeps running.
		return gpio.NewFake(), nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

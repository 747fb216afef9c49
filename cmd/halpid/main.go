// Command halpid is the power-management daemon: it polls the power
// controller over I²C, drives an orderly shutdown on sustained
// blackout, and exposes a Unix-socket HTTP control plane.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatlabs/halpid/internal/api"
	"github.com/hatlabs/halpid/internal/config"
	"github.com/hatlabs/halpid/internal/device"
	"github.com/hatlabs/halpid/internal/hardware"
	"github.com/hatlabs/halpid/internal/statemachine"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	confPath := flag.String("conf", config.DefaultConfigPath, "path to the config file")
	i2cBus := flag.Uint("i2c-bus", 0, "I2C bus number")
	i2cAddr := flag.Uint("i2c-addr", 0, "I2C device address")
	socket := flag.String("socket", "", "control socket path")
	blackoutTimeLimit := flag.Float64("blackout-time-limit", 0, "seconds of sustained blackout before shutdown")
	blackoutVoltageLimit := flag.Float64("blackout-voltage-limit", 0, "V_in threshold below which a blackout begins")
	poweroff := flag.String("poweroff", "", "command to run to power off the host")
	debug := flag.Bool("debug", false, "enable debug logging")
	mock := flag.Bool("mock", false, "use an in-memory mock device instead of real hardware")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	rec, err := config.LoadOrDefault(*confPath)
	if err != nil {
		slog.Error("failed to load config", "path", *confPath, "err", err)
		os.Exit(1)
	}

	visited := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { visited[f.Name] = true })
	rec.ApplyFlags(visited, config.FlagOverrides{
		I2CBus:               i2cBus,
		I2CAddr:              i2cAddr,
		Socket:               socket,
		BlackoutTimeLimit:    blackoutTimeLimit,
		BlackoutVoltageLimit: blackoutVoltageLimit,
		Poweroff:             poweroff,
	})

	if err := rec.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	watchPath := *confPath
	if _, statErr := os.Stat(watchPath); os.IsNotExist(statErr) {
		watchPath = "" // nothing on disk to watch
	}
	cfgWatcher, err := config.NewWatcher(watchPath, rec)
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		os.Exit(1)
	}
	defer cfgWatcher.Close()

	transport, err := openTransport(*mock, rec)
	if err != nil {
		slog.Error("failed to open device transport", "err", err)
		os.Exit(1)
	}

	dev := device.New(transport)
	owner := device.NewOwner(dev)

	socketPath := rec.SocketPath()
	listener, err := api.Listen(socketPath, rec.SocketGroup)
	if err != nil {
		slog.Error("failed to bind control socket", "path", socketPath, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := api.NewRouter(owner, cfgWatcher, version)
	server := &http.Server{Handler: router}

	mach := statemachine.New(owner, cfgWatcher)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("control plane listening", "socket", socketPath)
		serverErr <- server.Serve(listener)
	}()

	go mach.Run(ctx)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("control plane exited unexpectedly", "err", err)
		}
	}

	cleanup(server, owner, socketPath)
}

func openTransport(mock bool, rec config.Record) (hardware.Transport, error) {
	if mock {
		return hardware.NewMockTransport(), nil
	}
	return hardware.OpenI2CBus(int(rec.I2CBus), byte(rec.I2CAddr))
}

// cleanup runs the mandatory shutdown sequence: disarm the watchdog so a
// clean daemon exit never triggers a spurious power-cycle, close the
// HTTP server, and remove the socket file. Every step is best-effort
// and logged rather than fatal — a daemon that is already shutting down
// must not get stuck on a secondary failure.
func cleanup(server *http.Server, owner *device.Owner, socketPath string) {
	if err := owner.Do(func(d *device.Device) error {
		return d.SetWatchdogTimeout(0)
	}); err != nil {
		slog.Warn("failed to disarm watchdog on exit", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("control plane shutdown error", "err", err)
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove socket file", "path", socketPath, "err", err)
	}

	slog.Info("halpid exiting")
}

const serverShutdownTimeout = 5 * time.Second

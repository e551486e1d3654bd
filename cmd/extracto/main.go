// Command extracto hosts autobattler runs. It reads line commands from
// stdin and answers each with one JSON line on stdout. "extracto replay
// script.yaml..." plays scripts offline and prints their final state.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/OCAP2/extracto/internal/api"
	"github.com/OCAP2/extracto/internal/auth"
	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/dispatcher"
	"github.com/OCAP2/extracto/internal/game"
	"github.com/OCAP2/extracto/internal/handlers"
	"github.com/OCAP2/extracto/internal/influx"
	"github.com/OCAP2/extracto/internal/logging"
	"github.com/OCAP2/extracto/internal/monitor"
	intOtel "github.com/OCAP2/extracto/internal/otel"
	"github.com/OCAP2/extracto/internal/scheduler"
	"github.com/OCAP2/extracto/internal/seed"
	"github.com/OCAP2/extracto/internal/storage"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	ServiceName string = "extracto"
)

var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()
)

// seedEpoch anchors the seed clock so seeds keep rising across restarts.
var seedEpoch = time.Unix(0, 0)

// app owns every long-lived service of one serve session.
type app struct {
	logFile    *os.File
	otel       *intOtel.Provider
	gelf       *logging.GelfHandler
	backend    storage.Backend
	influx     *influx.Manager
	archiver   *api.Archiver
	game       *game.Service
	monitor    *monitor.Service
	dispatcher *dispatcher.Dispatcher
}

// newApp wires the services from the loaded configuration.
func newApp() (*app, error) {
	a := &app{}
	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	a.logFile = logFile

	otelCfg := config.GetOTelConfig()
	a.otel, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init otel: %w", err)
	}

	var extra []slog.Handler
	if gc := config.GetGraylogConfig(); gc.Enabled {
		a.gelf, err = logging.NewGelfHandler(gc.Address, level)
		if err != nil {
			// logging still works without Graylog
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			extra = append(extra, a.gelf)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel.Enabled() {
		otelLogProvider = a.otel.LoggerProvider()
	}
	SlogManager.SetContextProvider(func() []slog.Attr {
		if a.game == nil {
			return nil
		}
		return []slog.Attr{slog.Int("activeRuns", a.game.ActiveRuns())}
	})
	SlogManager.Setup(logFile, level, otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logPath, "version", CurrentVersion, "buildDate", BuildDate)

	zlog := logging.NewZerolog(logFile, level, "storage")

	storageCfg := config.GetStorageConfig()
	a.backend, err = createStorageBackend(storageCfg, logsDir, zlog)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.backend.Init(); err != nil {
		a.backend = nil
		a.close()
		return nil, fmt.Errorf("init %s storage: %w", storageCfg.Type, err)
	}

	var sinks game.Sinks
	var points monitor.PointWriter
	if ic := config.GetInfluxConfig(); ic.Enabled {
		m := influx.NewManager(ic, logging.NewZerolog(logFile, level, "influx"),
			filepath.Join(logsDir, "influx_backup.log.gz"))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := m.Connect(ctx)
		cancel()
		if err != nil {
			Logger.Warn("InfluxDB disabled", "error", err)
		} else {
			a.influx = m
			sinks = append(sinks, m)
			points = m
		}
	}

	if ac := config.GetAPIConfig(); ac.Enabled {
		exports, ok := a.backend.(storage.Exporter)
		client := api.New(ac.ServerURL, ac.APIKey)
		switch {
		case !ok:
			Logger.Warn("Run archive disabled, storage does not export files", "storage", storageCfg.Type)
		case client.Healthcheck() != nil:
			Logger.Warn("Run archive unreachable, uploads disabled", "url", ac.ServerURL)
		default:
			a.archiver = api.NewArchiver(client, exports, Logger.With("component", "archive"))
			sinks = append(sinks, a.archiver)
		}
	}

	schedCfg := config.GetSchedulerConfig()
	sched := scheduler.NewManager(schedCfg.TickInterval, Logger.With("component", "scheduler"))
	sessions := auth.NewSessions()

	a.game, err = game.NewService(game.Dependencies{
		Storage:   a.backend,
		Auth:      sessions,
		Seeds:     seed.NewClock(schedCfg.SeedSlot, seedEpoch),
		Scheduler: sched,
		Meter:     a.otel.Meter("extracto/game"),
		Sink:      sinks,
		Logger:    Logger.With("component", "game"),
	})
	if err != nil {
		a.close()
		return nil, err
	}

	monDeps := monitor.Dependencies{
		ActiveRuns:  a.game.ActiveRuns,
		Scheduler:   sched,
		Storage:     a.backend,
		StorageType: storageCfg.Type,
		Influx:      points,
		StatusPath:  filepath.Join(logsDir, "status.json"),
		Logger:      Logger.With("component", "monitor"),
	}
	if db, ok := a.backend.(interface{ DB() *gorm.DB }); ok {
		monDeps.DB = db.DB()
	}
	a.monitor = monitor.NewService(monDeps)

	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(logging.NewZerolog(logFile, level, "dispatcher")))
	if err != nil {
		a.close()
		return nil, err
	}
	h := handlers.NewService(handlers.Dependencies{
		Game:       a.game,
		Sessions:   sessions,
		Monitor:    a.monitor,
		Version:    CurrentVersion,
		SessionTTL: schedCfg.SessionTTL,
	})
	if err := h.Register(a.dispatcher); err != nil {
		a.close()
		return nil, err
	}

	Logger.Info("Service ready",
		"storage", storageCfg.Type,
		"tickInterval", sched.Interval(),
		"commands", len(a.dispatcher.Commands()),
	)
	return a, nil
}

// response is written to stdout for every input line.
type response struct {
	Command string `json:"command,omitempty"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// serve handles lines from in until it is exhausted or ctx is cancelled.
func (a *app) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	a.monitor.Start()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			Logger.Info("Shutting down", "reason", context.Cause(ctx))
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			if err := enc.Encode(a.handle(ctx, line)); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func (a *app) handle(ctx context.Context, line string) response {
	e, err := handlers.ParseLine(line)
	if err != nil {
		return response{Error: err.Error()}
	}
	result, err := a.dispatcher.Dispatch(ctx, e)
	if err != nil {
		return response{Command: e.Command, Error: err.Error()}
	}
	return response{Command: e.Command, OK: true, Result: result}
}

// close stops everything newApp started, in reverse order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.game != nil {
		a.game.Shutdown()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.archiver != nil {
		a.archiver.Wait()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			Logger.Error("Failed to close storage", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			Logger.Error("Failed to shut down OTel", "error", err)
		}
	}
	if a.gelf != nil {
		_ = a.gelf.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// loadConfig reads the config file and applies flag overrides. A missing
// file is not fatal.
func loadConfig(flags *pflag.FlagSet) {
	configDir, _ := flags.GetString("config")
	if err := config.Load(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}
	for key, name := range map[string]string{
		"logLevel":               "log-level",
		"logsDir":                "logs-dir",
		"storage.type":           "storage",
		"scheduler.tickInterval": "tick-interval",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	flags.StringP("config", "c", ".", "directory holding "+config.FileName)
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("logs-dir", "./extractologs", "directory for logs, status and exports")
	flags.StringP("storage", "s", "memory", "storage backend (memory, sqlite, postgres, websocket)")
	flags.Duration("tick-interval", time.Second, "interval between automatic ticks")
	return flags
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) > 0 && strings.ToLower(rest[0]) == "replay" {
		return runReplay(rest[1:], stdout)
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown subcommand %q", rest[0])
	}

	loadConfig(flags)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx, stdin, stdout)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil && !errors.Is(err, pflag.ErrHelp) {
		Logger.Error("extracto failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

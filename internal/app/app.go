package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sensor-collector/internal/alerting"
	"sensor-collector/internal/config"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
	"sensor-collector/internal/sensor"
	"sensor-collector/internal/service"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
	"sensor-collector/internal/transport"
	"sensor-collector/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logging.Component(logger, "app"),
		Out:    os.Stdout,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", action)
	}
	return store, closeStore, nil
}

func (a *App) serialOptions() transport.SerialOptions {
	cfg := a.Config.Serial
	return transport.SerialOptions{
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		DataBits:    cfg.DataBits,
		Parity:      cfg.Parity,
		StopBits:    cfg.StopBits,
		SettleDelay: cfg.SettleDelay,
	}
}

// Run executes the long-running ingestion session against the serial device.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := service.OptionsFromConfig(a.Config)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	collector := metrics.New()
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := collector.Serve(ctx, addr, a.Config.Metrics.Path, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	link, err := transport.OpenSerial(ctx, a.serialOptions(), a.Logger)
	if err != nil {
		return err
	}
	defer link.Close()

	var gateway storage.Gateway
	if store != nil {
		gateway = store
	}
	var notifier alerting.Notifier
	if a.Config.Alarms.Notify {
		notifier = a.newNotifier()
	}

	svc := service.New(opts, link, gateway, notifier, collector, a.Logger)

	a.Logger.Info().
		Str("version", version.String()).
		Str("port", a.Config.Serial.Port).
		Int("frequency_hz", a.Config.Sampling.FrequencyHz).
		Msg("starting sensor collector")
	err = svc.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("collector terminated with error")
		return err
	}

	a.Logger.Info().Msg("sensor collector stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored readings.
type ExportOptions struct {
	Kind    sensor.Kind
	From    *time.Time
	To      *time.Time
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ReplayOptions configure the replay job.
type ReplayOptions struct {
	Path     string
	Identity sensor.Identity
	DryRun   bool
}

// SimulateOptions configure a single simulated cycle.
type SimulateOptions struct {
	Line         string
	Identity     sensor.Identity
	Temperature  *threshold.Bounds
	Acceleration *threshold.Bounds
	Notify       bool
}

// ThresholdOptions describe a new threshold row.
type ThresholdOptions struct {
	Bounds threshold.Bounds
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/service"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
	"sensor-collector/internal/transport"
)

// Replay feeds a captured line file through the ingestion pipeline.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcOpts, err := service.OptionsFromConfig(a.Config)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var gateway storage.Gateway
	switch {
	case opts.DryRun:
		a.Logger.Warn().Msg("replay dry-run: nothing will be written to the database")
		dry := &dryRunGateway{}
		if store != nil {
			dry.source = store
		}
		gateway = dry
	case store == nil:
		return errors.New("database.dsn not configured; cannot replay (try --dry-run)")
	default:
		gateway = store
	}

	link, err := transport.OpenFile(opts.Path, a.Logger)
	if err != nil {
		return err
	}
	defer link.Close()

	svc := service.New(svcOpts, link, gateway, nil, nil, a.Logger)
	summary, err := svc.Replay(ctx, opts.Identity)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("lines", summary.Lines).
		Int("invalid", summary.Invalid).
		Int("readings", summary.Readings).
		Int("alarms", summary.Alarms).
		Msg("replay complete")
	fmt.Fprintf(a.Out, "lines: %d\ninvalid: %d\nreadings: %d\nalarms: %d\n",
		summary.Lines, summary.Invalid, summary.Readings, summary.Alarms)
	return nil
}

// dryRunGateway hands out synthetic reading ids and discards writes. Threshold
// lookups go to source when one is configured.
type dryRunGateway struct {
	source storage.Gateway
	next   int64
}

func (d *dryRunGateway) InsertReading(context.Context, storage.ReadingRecord) (int64, error) {
	d.next++
	return d.next, nil
}

func (d *dryRunGateway) LatestReadingID(context.Context, sensor.Kind) (int64, bool, error) {
	return d.next, d.next > 0, nil
}

func (d *dryRunGateway) InsertAlarm(context.Context, storage.AlarmRecord) error {
	return nil
}

func (d *dryRunGateway) LatestThreshold(ctx context.Context, sensorID int) (*threshold.Bounds, error) {
	if d.source == nil {
		return nil, nil
	}
	return d.source.LatestThreshold(ctx, sensorID)
}

var _ storage.Gateway = (*dryRunGateway)(nil)

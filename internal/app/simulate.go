package app

import (
	"context"
	"fmt"
	"strings"

	"sensor-collector/internal/alerting"
	"sensor-collector/internal/service"
	"sensor-collector/internal/threshold"
)

// SimulateAlarm runs one line through decode, evaluation and notification
// without touching the device or writing to the database. Bounds not given on
// the command line are read from the database when one is configured.
func (a *App) SimulateAlarm(ctx context.Context, opts SimulateOptions) error {
	svcOpts, err := service.OptionsFromConfig(a.Config)
	if err != nil {
		return err
	}

	if opts.Temperature == nil || opts.Acceleration == nil {
		if err := a.fillBounds(ctx, &opts); err != nil {
			return err
		}
	}

	var notifier alerting.Notifier
	if opts.Notify {
		notifier = a.newNotifier()
		if notifier == nil {
			return fmt.Errorf("no alerting channel configured")
		}
	}

	svc := service.New(svcOpts, nil, nil, notifier, nil, a.Logger)
	svc.Prime(opts.Identity, opts.Temperature, opts.Acceleration)

	out, err := svc.ProcessLine(ctx, opts.Line)
	if err != nil {
		return err
	}
	if !out.Valid {
		return fmt.Errorf("line carries no usable reading: %s", strings.TrimSpace(opts.Line))
	}

	if out.Temperature != nil {
		fmt.Fprintf(a.Out, "temperature sensor %d: %s\n", out.Temperature.SensorID, formatFloat(out.Temperature.Temperature, 2))
	}
	if out.Acceleration != nil {
		d := out.Acceleration.Delta
		fmt.Fprintf(a.Out, "acceleration sensor %d: delta x=%s y=%s z=%s\n", out.Acceleration.SensorID,
			formatFloat(d.DX, 3), formatFloat(d.DY, 3), formatFloat(d.DZ, 3))
	}
	if len(out.Alarms) == 0 {
		fmt.Fprintln(a.Out, "no alarms")
		return nil
	}
	for _, alarm := range out.Alarms {
		fmt.Fprintln(a.Out, threshold.Label(alarm.Classification, alarm.Parameter))
	}
	return nil
}

func (a *App) fillBounds(ctx context.Context, opts *SimulateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database not configured; roles without bounds are not evaluated")
		return nil
	}
	defer closeStore()

	if opts.Temperature == nil {
		if opts.Temperature, err = store.LatestThreshold(ctx, opts.Identity.TemperatureSensorID); err != nil {
			return err
		}
	}
	if opts.Acceleration == nil {
		if opts.Acceleration, err = store.LatestThreshold(ctx, opts.Identity.AccelerometerID); err != nil {
			return err
		}
	}
	return nil
}

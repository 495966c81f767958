package app

import (
	"context"
	"fmt"

	"sensor-collector/internal/storage"
)

// SetThreshold appends a threshold row; the newest row per sensor is the one
// the collector loads.
func (a *App) SetThreshold(ctx context.Context, opts ThresholdOptions) error {
	store, closeStore, err := a.requireStore(ctx, "set threshold")
	if err != nil {
		return err
	}
	defer closeStore()

	sensorRow := storage.SensorRecord{ID: opts.Bounds.SensorID, Type: opts.Bounds.Parameter}
	if _, err := store.RegisterSensor(ctx, sensorRow); err != nil {
		return err
	}

	id, err := store.InsertThreshold(ctx, opts.Bounds)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int64("threshold_id", id).
		Int("sensor_id", opts.Bounds.SensorID).
		Str("min", opts.Bounds.Min.String()).
		Str("max", opts.Bounds.Max.String()).
		Msg("threshold stored")
	fmt.Fprintf(a.Out, "threshold %d stored for sensor %d: [%s, %s]\n",
		id, opts.Bounds.SensorID, opts.Bounds.Min, opts.Bounds.Max)
	return nil
}

package app

import (
	"context"
	"fmt"

	"sensor-collector/internal/storage"
)

// SensorOptions describe a sensor registry row.
type SensorOptions struct {
	ID       int
	Type     string
	Location string
}

// AddSensor registers a sensor so readings and thresholds can reference it.
// An already registered id is left untouched.
func (a *App) AddSensor(ctx context.Context, opts SensorOptions) error {
	if opts.ID <= 0 {
		return fmt.Errorf("sensor id must be positive, got %d", opts.ID)
	}
	if opts.Type == "" {
		return fmt.Errorf("sensor %d: type is required", opts.ID)
	}

	store, closeStore, err := a.requireStore(ctx, "add sensor")
	if err != nil {
		return err
	}
	defer closeStore()

	created, err := store.RegisterSensor(ctx, storage.SensorRecord{ID: opts.ID, Type: opts.Type, Location: opts.Location})
	if err != nil {
		return err
	}

	if !created {
		fmt.Fprintf(a.Out, "sensor %d already registered\n", opts.ID)
		return nil
	}
	a.Logger.Info().Int("sensor_id", opts.ID).Str("type", opts.Type).Msg("sensor registered")
	fmt.Fprintf(a.Out, "sensor %d registered as %s\n", opts.ID, opts.Type)
	return nil
}

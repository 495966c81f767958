package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/storage"
)

// Export writes stored readings of one kind as CSV. An empty CSVPath writes
// to the App's output.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	switch opts.Kind {
	case sensor.KindTemperature, sensor.KindAcceleration:
	default:
		return fmt.Errorf("unknown reading kind %q", opts.Kind)
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxRows) * a.Config.Sampling.Interval())
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	readings, err := store.ListReadingsBetween(ctx, opts.Kind, from, to, opts.MaxRows)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no readings found for export window")
		return nil
	}
	a.Logger.Info().Str("kind", string(opts.Kind)).Int("rows", len(readings)).Msg("exporting readings")

	if opts.CSVPath == "" {
		return writeReadingsCSV(a.Out, opts.Kind, readings)
	}

	return writeCSVFile(opts.CSVPath, opts.Kind, readings)
}

// writeCSVFile creates path and its parent directories and writes readings
// to it. A failed close is reported since buffered rows may be lost.
func writeCSVFile(path string, kind sensor.Kind, readings []storage.ReadingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := writeReadingsCSV(file, kind, readings); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeReadingsCSV(w io.Writer, kind sensor.Kind, readings []storage.ReadingRecord) error {
	writer := csv.NewWriter(w)

	header := []string{"reading_id", "observed_at", "sensor_id", "temperature"}
	if kind == sensor.KindAcceleration {
		header = []string{"reading_id", "observed_at", "sensor_id", "x", "y", "z", "dx", "dy", "dz"}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range readings {
		record := []string{
			strconv.FormatInt(r.ID, 10),
			r.ObservedAt.UTC().Format(time.RFC3339Nano),
			strconv.Itoa(r.SensorID),
		}
		if kind == sensor.KindAcceleration {
			record = append(record,
				csvFloat(r.Acceleration.X), csvFloat(r.Acceleration.Y), csvFloat(r.Acceleration.Z),
				csvFloat(r.Delta.DX), csvFloat(r.Delta.DY), csvFloat(r.Delta.DZ))
		} else {
			record = append(record, csvFloat(r.Temperature))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

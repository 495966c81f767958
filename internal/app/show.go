package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
)

// Show prints the latest readings of both kinds and the latest alarms.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show readings")
	if err != nil {
		return err
	}
	defer closeStore()

	temps, err := store.ListRecentReadings(ctx, sensor.KindTemperature, opts.Limit)
	if err != nil {
		return err
	}
	accels, err := store.ListRecentReadings(ctx, sensor.KindAcceleration, opts.Limit)
	if err != nil {
		return err
	}
	alarms, err := store.ListRecentAlarms(ctx, opts.Limit)
	if err != nil {
		return err
	}

	return a.renderShow(temps, accels, alarms)
}

func (a *App) renderShow(temps, accels []storage.ReadingRecord, alarms []storage.AlarmRecord) error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "TEMPERATURE")
	if len(temps) == 0 {
		fmt.Fprintln(writer, "no readings found")
	} else {
		fmt.Fprintln(writer, "ID\tTime (UTC)\tSensor\tTemperature")
		for _, r := range temps {
			fmt.Fprintf(writer, "%d\t%s\t%d\t%s\n",
				r.ID, r.ObservedAt.UTC().Format(time.RFC3339), r.SensorID, formatFloat(r.Temperature, 2))
		}
	}

	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "ACCELERATION")
	if len(accels) == 0 {
		fmt.Fprintln(writer, "no readings found")
	} else {
		fmt.Fprintln(writer, "ID\tTime (UTC)\tSensor\tX\tY\tZ\tdX\tdY\tdZ")
		for _, r := range accels {
			fmt.Fprintf(writer, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.ObservedAt.UTC().Format(time.RFC3339), r.SensorID,
				formatFloat(r.Acceleration.X, 3), formatFloat(r.Acceleration.Y, 3), formatFloat(r.Acceleration.Z, 3),
				formatFloat(r.Delta.DX, 3), formatFloat(r.Delta.DY, 3), formatFloat(r.Delta.DZ, 3))
		}
	}

	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "ALARMS")
	if len(alarms) == 0 {
		fmt.Fprintln(writer, "no alarms found")
	} else {
		fmt.Fprintln(writer, "Time (UTC)\tKind\tReading\tAlarm")
		for _, al := range alarms {
			fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n",
				al.CreatedAt.UTC().Format(time.RFC3339), al.Kind, al.ReadingID,
				threshold.Label(al.Classification, al.Parameter))
		}
	}

	return writer.Flush()
}

// formatFloat renders v with fixed places; non-finite values fall back to strconv.
func formatFloat(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"sensor-collector/internal/app"
	"sensor-collector/internal/sensor"
	"sensor-collector/internal/threshold"
)

var (
	simulateLine     string
	simulateTempID   int
	simulateAccelID  int
	simulateTempMin  string
	simulateTempMax  string
	simulateAccelMin string
	simulateAccelMax string
	simulateNotify   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alarm",
	Short: "Evaluate one message against thresholds and report the alarms it raises",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateLine == "" {
			return errors.New("--line must be provided")
		}

		temp, err := parseBounds(simulateTempID, "temperature", simulateTempMin, simulateTempMax)
		if err != nil {
			return err
		}
		accel, err := parseBounds(simulateAccelID, "acceleration", simulateAccelMin, simulateAccelMax)
		if err != nil {
			return err
		}

		return getApp().SimulateAlarm(cmd.Context(), app.SimulateOptions{
			Line: simulateLine,
			Identity: sensor.Identity{
				TemperatureSensorID: simulateTempID,
				AccelerometerID:     simulateAccelID,
			},
			Temperature:  temp,
			Acceleration: accel,
			Notify:       simulateNotify,
		})
	},
}

// parseBounds returns nil when neither limit is given.
func parseBounds(sensorID int, parameter, lo, hi string) (*threshold.Bounds, error) {
	if lo == "" && hi == "" {
		return nil, nil
	}
	if lo == "" || hi == "" {
		return nil, fmt.Errorf("%s bounds need both a minimum and a maximum", parameter)
	}
	minV, err := decimal.NewFromString(lo)
	if err != nil {
		return nil, fmt.Errorf("invalid %s minimum: %w", parameter, err)
	}
	maxV, err := decimal.NewFromString(hi)
	if err != nil {
		return nil, fmt.Errorf("invalid %s maximum: %w", parameter, err)
	}
	if minV.GreaterThan(maxV) {
		return nil, fmt.Errorf("%s minimum %s exceeds maximum %s", parameter, minV, maxV)
	}
	return &threshold.Bounds{SensorID: sensorID, Parameter: parameter, Min: minV, Max: maxV}, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateLine, "line", "", `Raw message, e.g. {"temperature":{"sensor_id":1,"temperature":30}}`)
	simulateCmd.Flags().IntVar(&simulateTempID, "temperature-sensor", 1, "Sensor id of the temperature sensor")
	simulateCmd.Flags().IntVar(&simulateAccelID, "accelerometer", 2, "Sensor id of the accelerometer")
	simulateCmd.Flags().StringVar(&simulateTempMin, "temperature-min", "", "Temperature lower bound (database when unset)")
	simulateCmd.Flags().StringVar(&simulateTempMax, "temperature-max", "", "Temperature upper bound (database when unset)")
	simulateCmd.Flags().StringVar(&simulateAccelMin, "acceleration-min", "", "Acceleration delta lower bound (database when unset)")
	simulateCmd.Flags().StringVar(&simulateAccelMax, "acceleration-max", "", "Acceleration delta upper bound (database when unset)")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Deliver raised alarms through the configured channel")
}

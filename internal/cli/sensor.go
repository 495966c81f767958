package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"sensor-collector/internal/app"
)

var (
	sensorID       int
	sensorType     string
	sensorLocation string
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Manage the sensor registry",
}

var sensorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a sensor id",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sensorID <= 0 {
			return errors.New("--id must be a positive sensor id")
		}
		return getApp().AddSensor(cmd.Context(), app.SensorOptions{
			ID:       sensorID,
			Type:     sensorType,
			Location: sensorLocation,
		})
	},
}

func init() {
	sensorAddCmd.Flags().IntVar(&sensorID, "id", 0, "Sensor id reported by the device")
	sensorAddCmd.Flags().StringVar(&sensorType, "type", "", "Sensor type (temperature or acceleration)")
	sensorAddCmd.Flags().StringVar(&sensorLocation, "location", "", "Where the sensor is installed")

	sensorCmd.AddCommand(sensorAddCmd)
}

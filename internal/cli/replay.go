package cli

import (
	"github.com/spf13/cobra"

	"sensor-collector/internal/app"
	"sensor-collector/internal/sensor"
)

var (
	replayTemperatureID int
	replayAccelID       int
	replayDryRun        bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Feed a captured line file through the ingestion pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReplayOptions{
			Path: args[0],
			Identity: sensor.Identity{
				TemperatureSensorID: replayTemperatureID,
				AccelerometerID:     replayAccelID,
			},
			DryRun: replayDryRun,
		}
		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayTemperatureID, "temperature-sensor", 1, "Sensor id of the temperature sensor")
	replayCmd.Flags().IntVar(&replayAccelID, "accelerometer", 2, "Sensor id of the accelerometer")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Run without writing to storage")
}

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"sensor-collector/internal/app"
)

var (
	thresholdSensorID  int
	thresholdParameter string
	thresholdMin       string
	thresholdMax       string
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Manage alarm thresholds",
}

var thresholdSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a new threshold row for a sensor",
	RunE: func(cmd *cobra.Command, args []string) error {
		if thresholdSensorID <= 0 {
			return errors.New("--sensor must be a positive sensor id")
		}
		if thresholdMin == "" || thresholdMax == "" {
			return errors.New("--min and --max must be provided")
		}

		bounds, err := parseBounds(thresholdSensorID, thresholdParameter, thresholdMin, thresholdMax)
		if err != nil {
			return err
		}
		return getApp().SetThreshold(cmd.Context(), app.ThresholdOptions{Bounds: *bounds})
	},
}

func init() {
	thresholdSetCmd.Flags().IntVar(&thresholdSensorID, "sensor", 0, "Sensor id the bounds apply to")
	thresholdSetCmd.Flags().StringVar(&thresholdParameter, "parameter", "", "Parameter label stored with the row (temperature or acceleration)")
	thresholdSetCmd.Flags().StringVar(&thresholdMin, "min", "", "Lower bound")
	thresholdSetCmd.Flags().StringVar(&thresholdMax, "max", "", "Upper bound")

	thresholdCmd.AddCommand(thresholdSetCmd)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Sampling.FrequencyHz)
	require.Equal(t, time.Second, cfg.Sampling.Interval())
	require.Equal(t, 9600, cfg.Serial.BaudRate)
	require.Equal(t, 2*time.Second, cfg.Serial.SettleDelay)
	require.Equal(t, "magnitude", cfg.Alarms.AccelerationMode)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.yaml")
	body := `
serial:
  port: /dev/ttyACM0
  baud_rate: 115200
sampling:
  frequency_hz: 10
  poll_timeout: 20ms
alarms:
  acceleration_mode: signed
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SENSORCOLLECTOR_DATABASE_DSN", "postgres://localhost/sensordata")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	require.Equal(t, 115200, cfg.Serial.BaudRate)
	require.Equal(t, 100*time.Millisecond, cfg.Sampling.Interval())
	require.Equal(t, 20*time.Millisecond, cfg.Sampling.PollTimeout)
	require.Equal(t, "signed", cfg.Alarms.AccelerationMode)
	require.Equal(t, "postgres://localhost/sensordata", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Sampling:  SamplingConfig{FrequencyHz: 2, PollTimeout: 50 * time.Millisecond},
			Handshake: HandshakeConfig{AckTimeout: time.Second, IdentityTimeout: time.Second},
			Export:    ExportConfig{MaxRows: 10},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Sampling.FrequencyHz = 0
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Sampling.PollTimeout = time.Second
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Alarms.AccelerationMode = "per-axis"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Alerting.Telegram.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestResolveMaxRows(t *testing.T) {
	cfg := Config{Export: ExportConfig{MaxRows: 50}}
	require.Equal(t, 50, cfg.ResolveMaxRows(0))
	require.Equal(t, 5, cfg.ResolveMaxRows(5))
}

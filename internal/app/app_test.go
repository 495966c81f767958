package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sensor-collector/internal/config"
	"sensor-collector/internal/sensor"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Sampling:  config.SamplingConfig{FrequencyHz: 1, PollTimeout: 50 * time.Millisecond},
		Handshake: config.HandshakeConfig{AckTimeout: time.Second, IdentityTimeout: time.Second},
		Alarms:    config.AlarmsConfig{AccelerationMode: "magnitude"},
		Export:    config.ExportConfig{MaxRows: 100},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func testBounds(lo, hi int64) *threshold.Bounds {
	return &threshold.Bounds{Min: decimal.NewFromInt(lo), Max: decimal.NewFromInt(hi)}
}

func TestSimulateAlarm(t *testing.T) {
	a, out := testApp(t)

	err := a.SimulateAlarm(context.Background(), SimulateOptions{
		Line:         `{"temperature":{"sensor_id":1,"temperature":30},"acceleration":{"sensor_id":2,"x":20,"y":0,"z":0}}`,
		Identity:     sensor.Identity{TemperatureSensorID: 1, AccelerometerID: 2},
		Temperature:  testBounds(-4, 28),
		Acceleration: testBounds(-15, 15),
	})
	require.NoError(t, err)

	text := out.String()
	require.Contains(t, text, "temperature sensor 1: 30.00")
	require.Contains(t, text, "delta x=-20.000 y=0.000 z=0.000")
	require.Contains(t, text, "HIGH ALARM TEMPERATURE")
	require.Contains(t, text, "HIGH ALARM ACCELERATION X")
	require.NotContains(t, text, "ACCELERATION Y")
}

func TestSimulateAlarmWithinBounds(t *testing.T) {
	a, out := testApp(t)

	err := a.SimulateAlarm(context.Background(), SimulateOptions{
		Line:        `{"temperature":{"sensor_id":1,"temperature":20}}`,
		Identity:    sensor.Identity{TemperatureSensorID: 1, AccelerometerID: 2},
		Temperature: testBounds(-4, 28),
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "no alarms")
}

func TestSimulateAlarmRejectsInvalidLine(t *testing.T) {
	a, _ := testApp(t)

	err := a.SimulateAlarm(context.Background(), SimulateOptions{Line: `{"hello":"world"}`})
	require.ErrorContains(t, err, "no usable reading")
}

func TestSimulateAlarmNotifyWithoutChannel(t *testing.T) {
	a, _ := testApp(t)

	err := a.SimulateAlarm(context.Background(), SimulateOptions{
		Line:   `{"temperature":{"sensor_id":1,"temperature":30}}`,
		Notify: true,
	})
	require.ErrorContains(t, err, "no alerting channel")
}

func TestRenderShow(t *testing.T) {
	a, out := testApp(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := a.renderShow(
		[]storage.ReadingRecord{{ID: 3, Kind: sensor.KindTemperature, SensorID: 1, ObservedAt: at, Temperature: 21.5}},
		nil,
		[]storage.AlarmRecord{{Kind: sensor.KindAcceleration, ReadingID: 9, Parameter: "z", Classification: threshold.Low, CreatedAt: at}},
	)
	require.NoError(t, err)

	text := out.String()
	require.Contains(t, text, "2024-05-01T12:00:00Z")
	require.Contains(t, text, "21.50")
	require.Contains(t, text, "no readings found")
	require.Contains(t, text, "LOW ALARM ACCELERATION Z")
}

func TestWriteReadingsCSV(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	buf := &bytes.Buffer{}

	err := writeReadingsCSV(buf, sensor.KindAcceleration, []storage.ReadingRecord{{
		ID:           4,
		Kind:         sensor.KindAcceleration,
		SensorID:     2,
		ObservedAt:   at,
		Acceleration: sensor.Vector{X: 3, Y: 3, Z: 3},
		Delta:        sensor.Delta{DX: -2, DY: -2, DZ: -2},
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "reading_id,observed_at,sensor_id,x,y,z,dx,dy,dz", lines[0])
	require.Equal(t, "4,2024-05-01T12:00:00Z,2,3,3,3,-2,-2,-2", lines[1])
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "temperature.csv")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := writeCSVFile(path, sensor.KindTemperature, []storage.ReadingRecord{
		{ID: 7, Kind: sensor.KindTemperature, SensorID: 1, ObservedAt: at, Temperature: 22.25},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "reading_id,observed_at,sensor_id,temperature\n7,2024-05-01T12:00:00Z,1,22.25\n", string(data))

	err = writeCSVFile(filepath.Join(path, "child.csv"), sensor.KindTemperature, nil)
	require.Error(t, err)
}

func TestExportRejectsUnknownKind(t *testing.T) {
	a, _ := testApp(t)
	require.ErrorContains(t, a.Export(context.Background(), ExportOptions{Kind: "humidity"}), "unknown reading kind")
}

func TestExportRequiresDatabase(t *testing.T) {
	a, _ := testApp(t)
	require.ErrorContains(t, a.Export(context.Background(), ExportOptions{Kind: sensor.KindTemperature}), "database not configured")
}

func TestReplayDryRun(t *testing.T) {
	a, out := testApp(t)
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		`{"temperature":{"sensor_id":1,"temperature":20}}`,
		`not json`,
		`{"acceleration":{"sensor_id":2,"x":1,"y":1,"z":1}}`,
	}, "\n")+"\n"), 0o644))

	err := a.Replay(context.Background(), ReplayOptions{
		Path:     path,
		Identity: sensor.Identity{TemperatureSensorID: 1, AccelerometerID: 2},
		DryRun:   true,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "lines: 3")
	require.Contains(t, out.String(), "invalid: 1")
	require.Contains(t, out.String(), "readings: 2")
}

func TestReplayRequiresDatabaseWithoutDryRun(t *testing.T) {
	a, _ := testApp(t)
	err := a.Replay(context.Background(), ReplayOptions{Path: "missing.jsonl"})
	require.ErrorContains(t, err, "cannot replay")
}

func TestDryRunGateway(t *testing.T) {
	gw := &dryRunGateway{}
	ctx := context.Background()

	_, ok, err := gw.LatestReadingID(ctx, sensor.KindTemperature)
	require.NoError(t, err)
	require.False(t, ok)

	id, err := gw.InsertReading(ctx, storage.ReadingRecord{})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	latest, ok, err := gw.LatestReadingID(ctx, sensor.KindTemperature)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), latest)

	b, err := gw.LatestThreshold(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestSetThresholdRequiresDatabase(t *testing.T) {
	a, _ := testApp(t)
	err := a.SetThreshold(context.Background(), ThresholdOptions{Bounds: *testBounds(0, 1)})
	require.ErrorContains(t, err, "database not configured")
}

func TestAddSensorValidation(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()

	require.ErrorContains(t, a.AddSensor(ctx, SensorOptions{ID: 0, Type: "temperature"}), "must be positive")
	require.ErrorContains(t, a.AddSensor(ctx, SensorOptions{ID: 1}), "type is required")
	require.ErrorContains(t, a.AddSensor(ctx, SensorOptions{ID: 1, Type: "temperature"}), "cannot add sensor")
}

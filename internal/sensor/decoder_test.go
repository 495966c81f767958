package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var observed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeTemperatureOnly(t *testing.T) {
	res := Decode(`{"temperature":{"sensor_id":1,"temperature":21.5}}`, observed)

	require.True(t, res.Valid)
	require.NoError(t, res.Err)
	require.Nil(t, res.Acceleration)
	require.NotNil(t, res.Temperature)
	require.Equal(t, TemperatureReading{SensorID: 1, Temperature: 21.5, ObservedAt: observed}, *res.Temperature)
}

func TestDecodeAccelerationOnly(t *testing.T) {
	res := Decode(`{"acceleration":{"sensor_id":2,"x":0.5,"y":-1,"z":9.81}}`, observed)

	require.True(t, res.Valid)
	require.Nil(t, res.Temperature)
	require.NotNil(t, res.Acceleration)
	require.Equal(t, 2, res.Acceleration.SensorID)
	require.Equal(t, Vector{X: 0.5, Y: -1, Z: 9.81}, res.Acceleration.Vector)
	require.Equal(t, Delta{}, res.Acceleration.Delta)
	require.Equal(t, observed, res.Acceleration.ObservedAt)
}

func TestDecodeBoth(t *testing.T) {
	line := `{"temperature":{"sensor_id":1,"temperature":19},"acceleration":{"sensor_id":2,"x":1,"y":2,"z":3}}`
	res := Decode(line, observed)

	require.True(t, res.Valid)
	require.NotNil(t, res.Temperature)
	require.NotNil(t, res.Acceleration)
}

func TestDecodeInvalid(t *testing.T) {
	cases := map[string]struct {
		line string
		want error
	}{
		"not json":          {line: "STARTED", want: ErrMalformed},
		"truncated":         {line: `{"temperature":{"sensor_id":1,`, want: ErrMalformed},
		"array":             {line: `[1,2,3]`, want: ErrMalformed},
		"ack echo":          {line: `{"Command":"START"}`, want: ErrNoReadings},
		"empty object":      {line: `{}`, want: ErrNoReadings},
		"null body":         {line: `{"temperature":null}`, want: ErrNoReadings},
		"missing sensor id": {line: `{"temperature":{"temperature":20}}`, want: ErrNoReadings},
		"missing axis":      {line: `{"acceleration":{"sensor_id":2,"x":1,"y":2}}`, want: ErrNoReadings},
		"scalar body":       {line: `{"acceleration":7}`, want: ErrNoReadings},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := Decode(tc.line, observed)
			require.False(t, res.Valid)
			require.ErrorIs(t, res.Err, tc.want)
			require.Nil(t, res.Temperature)
			require.Nil(t, res.Acceleration)
		})
	}
}

func TestDecodeKeepsSurvivingVariant(t *testing.T) {
	line := `{"temperature":{"sensor_id":1,"temperature":"hot"},"acceleration":{"sensor_id":2,"x":1,"y":1,"z":1}}`
	res := Decode(line, observed)

	require.True(t, res.Valid)
	require.Nil(t, res.Temperature)
	require.NotNil(t, res.Acceleration)
}

func TestDecodeIdentity(t *testing.T) {
	id, err := DecodeIdentity(`{"SensorConfiguration":{"TemperatureSensor":{"Sensor_id":1},"Accelerometer":{"Sensor_id":2}}}`)
	require.NoError(t, err)
	require.Equal(t, Identity{TemperatureSensorID: 1, AccelerometerID: 2}, id)

	_, err = DecodeIdentity(`{"temperature":{"sensor_id":1,"temperature":20}}`)
	require.ErrorIs(t, err, ErrNoIdentity)

	_, err = DecodeIdentity(`{"SensorConfiguration":{"TemperatureSensor":{"Sensor_id":1}}}`)
	require.ErrorIs(t, err, ErrNoIdentity)

	_, err = DecodeIdentity(`STOPPED`)
	require.ErrorIs(t, err, ErrMalformed)
}

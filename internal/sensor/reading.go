// Package sensor models the readings streamed by the microcontroller and
// decodes the line-delimited JSON it emits.
package sensor

import "time"

// Kind distinguishes the two reading streams.
type Kind string

const (
	KindTemperature  Kind = "temperature"
	KindAcceleration Kind = "acceleration"
)

// Vector is a three-axis acceleration sample.
type Vector struct {
	X float64
	Y float64
	Z float64
}

// Delta is the per-axis change from the previous acceleration vector,
// computed as previous minus current.
type Delta struct {
	DX float64
	DY float64
	DZ float64
}

// Axes returns the delta components keyed by axis name in x, y, z order.
func (d Delta) Axes() []AxisValue {
	return []AxisValue{
		{Axis: "x", Value: d.DX},
		{Axis: "y", Value: d.DY},
		{Axis: "z", Value: d.DZ},
	}
}

// AxisValue pairs an axis name with a scalar.
type AxisValue struct {
	Axis  string
	Value float64
}

// TemperatureReading is one decoded temperature measurement.
type TemperatureReading struct {
	SensorID    int
	Temperature float64
	ObservedAt  time.Time
}

// AccelerationReading is one decoded accelerometer measurement. Delta is
// filled in by the Tracker, not by the decoder.
type AccelerationReading struct {
	SensorID   int
	Vector     Vector
	Delta      Delta
	ObservedAt time.Time
}

// Identity maps the two sensor roles to the ids the device reports.
type Identity struct {
	TemperatureSensorID int
	AccelerometerID     int
}

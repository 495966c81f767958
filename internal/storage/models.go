package storage

import (
	"time"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/threshold"
)

// ReadingRecord is one persisted measurement. Temperature is set for
// temperature readings; Acceleration and Delta for acceleration readings.
type ReadingRecord struct {
	ID           int64
	Kind         sensor.Kind
	SensorID     int
	ObservedAt   time.Time
	Temperature  float64
	Acceleration sensor.Vector
	Delta        sensor.Delta
}

// AlarmRecord is one threshold violation tied to the reading that raised it.
type AlarmRecord struct {
	ID             int64
	Kind           sensor.Kind
	ReadingID      int64
	Parameter      string
	Classification threshold.Classification
	CreatedAt      time.Time
}

// SensorRecord is one row of the sensor registry. Readings and thresholds
// reference it by ID.
type SensorRecord struct {
	ID       int
	Type     string
	Location string
}

package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed reports a line that is not a JSON object.
	ErrMalformed = errors.New("sensor: malformed message")
	// ErrNoReadings reports a well-formed message carrying no usable reading,
	// such as a command acknowledgement echoed by the device.
	ErrNoReadings = errors.New("sensor: no recognised readings")
	// ErrNoIdentity reports a line that is not a sensor configuration response.
	ErrNoIdentity = errors.New("sensor: not an identity response")
)

// Result is the outcome of decoding one line. When Valid is false Err holds
// the reason and both readings are nil.
type Result struct {
	Valid        bool
	Temperature  *TemperatureReading
	Acceleration *AccelerationReading
	Err          error
}

type message struct {
	Temperature  json.RawMessage `json:"temperature"`
	Acceleration json.RawMessage `json:"acceleration"`
}

type temperatureBody struct {
	SensorID    *int     `json:"sensor_id"`
	Temperature *float64 `json:"temperature"`
}

type accelerationBody struct {
	SensorID *int     `json:"sensor_id"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Z        *float64 `json:"z"`
}

// Decode parses one inbound line. The temperature and acceleration keys are
// inspected independently so a message may yield zero, one or two readings.
// Decode never panics and never returns an error outside Result.
func Decode(line string, observedAt time.Time) Result {
	var msg message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	var res Result
	if len(msg.Temperature) > 0 {
		if t, ok := decodeTemperature(msg.Temperature); ok {
			t.ObservedAt = observedAt
			res.Temperature = &t
		}
	}
	if len(msg.Acceleration) > 0 {
		if a, ok := decodeAcceleration(msg.Acceleration); ok {
			a.ObservedAt = observedAt
			res.Acceleration = &a
		}
	}

	if res.Temperature == nil && res.Acceleration == nil {
		return Result{Err: ErrNoReadings}
	}
	res.Valid = true
	return res
}

func decodeTemperature(raw json.RawMessage) (TemperatureReading, bool) {
	var body temperatureBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return TemperatureReading{}, false
	}
	if body.SensorID == nil || body.Temperature == nil {
		return TemperatureReading{}, false
	}
	return TemperatureReading{SensorID: *body.SensorID, Temperature: *body.Temperature}, true
}

func decodeAcceleration(raw json.RawMessage) (AccelerationReading, bool) {
	var body accelerationBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return AccelerationReading{}, false
	}
	if body.SensorID == nil || body.X == nil || body.Y == nil || body.Z == nil {
		return AccelerationReading{}, false
	}
	return AccelerationReading{
		SensorID: *body.SensorID,
		Vector:   Vector{X: *body.X, Y: *body.Y, Z: *body.Z},
	}, true
}

type identityResponse struct {
	SensorConfiguration *struct {
		TemperatureSensor struct {
			SensorID *int `json:"Sensor_id"`
		} `json:"TemperatureSensor"`
		Accelerometer struct {
			SensorID *int `json:"Sensor_id"`
		} `json:"Accelerometer"`
	} `json:"SensorConfiguration"`
}

// DecodeIdentity parses the device's answer to a RETURN_DATA command.
func DecodeIdentity(line string) (Identity, error) {
	var resp identityResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cfg := resp.SensorConfiguration
	if cfg == nil {
		return Identity{}, ErrNoIdentity
	}
	if cfg.TemperatureSensor.SensorID == nil || cfg.Accelerometer.SensorID == nil {
		return Identity{}, fmt.Errorf("%w: sensor id missing", ErrNoIdentity)
	}
	return Identity{
		TemperatureSensorID: *cfg.TemperatureSensor.SensorID,
		AccelerometerID:     *cfg.Accelerometer.SensorID,
	}, nil
}

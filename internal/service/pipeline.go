package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"sensor-collector/internal/alerting"
	"sensor-collector/internal/sensor"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
)

// session is the state owned by one Start-to-stop run.
type session struct {
	id           string
	identity     sensor.Identity
	temperature  *threshold.Bounds
	acceleration *threshold.Bounds
	tracker      sensor.Tracker
	logger       zerolog.Logger
	notes        chan alerting.Notification
}

// Outcome reports what one line produced.
type Outcome struct {
	Valid        bool
	Temperature  *storage.ReadingRecord
	Acceleration *storage.ReadingRecord
	Alarms       []storage.AlarmRecord
}

// processLine decodes, persists, evaluates and raises alarms for one line.
// Failures are logged and contained; nothing here stops the loop.
func (s *Service) processLine(ctx context.Context, sess *session, line string) Outcome {
	var out Outcome
	s.recorder.LineReceived()

	res := sensor.Decode(line, s.opts.Now().UTC())
	if !res.Valid {
		reason := "malformed"
		if errors.Is(res.Err, sensor.ErrNoReadings) {
			reason = "no_readings"
		}
		s.recorder.DecodeFailed(reason)
		sess.logger.Warn().Err(res.Err).Str("line", line).Msg("line dropped")
		return out
	}
	out.Valid = true

	if res.Temperature != nil {
		s.handleTemperature(ctx, sess, *res.Temperature, &out)
	}
	if res.Acceleration != nil {
		s.handleAcceleration(ctx, sess, *res.Acceleration, &out)
	}
	return out
}

func (s *Service) handleTemperature(ctx context.Context, sess *session, t sensor.TemperatureReading, out *Outcome) {
	if t.SensorID != sess.identity.TemperatureSensorID && sess.identity.TemperatureSensorID != 0 {
		sess.logger.Debug().Int("sensor_id", t.SensorID).Msg("temperature from unexpected sensor id")
	}

	rec := storage.ReadingRecord{
		Kind:        sensor.KindTemperature,
		SensorID:    t.SensorID,
		ObservedAt:  t.ObservedAt,
		Temperature: t.Temperature,
	}
	rec.ID = s.persistReading(ctx, sess, rec)
	out.Temperature = &rec

	if sess.temperature == nil {
		sess.logger.Debug().Msg("no temperature threshold configured")
		return
	}
	class := threshold.Evaluate(t.Temperature, sess.temperature)
	if class == threshold.None {
		return
	}
	alarm := s.raise(ctx, sess, rec, "temperature", class, t.Temperature, sess.temperature)
	out.Alarms = append(out.Alarms, alarm)
}

func (s *Service) handleAcceleration(ctx context.Context, sess *session, a sensor.AccelerationReading, out *Outcome) {
	if a.SensorID != sess.identity.AccelerometerID && sess.identity.AccelerometerID != 0 {
		sess.logger.Debug().Int("sensor_id", a.SensorID).Msg("acceleration from unexpected sensor id")
	}

	a.Delta = sess.tracker.Update(a.Vector)
	rec := storage.ReadingRecord{
		Kind:         sensor.KindAcceleration,
		SensorID:     a.SensorID,
		ObservedAt:   a.ObservedAt,
		Acceleration: a.Vector,
		Delta:        a.Delta,
	}
	rec.ID = s.persistReading(ctx, sess, rec)
	out.Acceleration = &rec

	if sess.acceleration == nil {
		sess.logger.Debug().Msg("no acceleration threshold configured")
		return
	}
	for _, axis := range a.Delta.Axes() {
		class := threshold.EvaluateAxis(axis.Value, sess.acceleration, s.opts.AccelerationMode)
		if class == threshold.None {
			continue
		}
		alarm := s.raise(ctx, sess, rec, axis.Axis, class, axis.Value, sess.acceleration)
		out.Alarms = append(out.Alarms, alarm)
	}
}

// persistReading stores rec and returns its id, or 0 when it was not stored.
func (s *Service) persistReading(ctx context.Context, sess *session, rec storage.ReadingRecord) int64 {
	if s.gateway == nil {
		return 0
	}
	logger := sess.logger.With().Str("kind", string(rec.Kind)).Int("sensor_id", rec.SensorID).Logger()

	id, err := s.gateway.InsertReading(ctx, rec)
	if err != nil {
		s.recorder.PersistFailed("insert_reading")
		logger.Error().Err(err).Msg("failed to store reading")
		return 0
	}
	s.recorder.ReadingStored(string(rec.Kind))

	if id == 0 {
		latest, ok, err := s.gateway.LatestReadingID(ctx, rec.Kind)
		if err != nil {
			s.recorder.PersistFailed("latest_reading_id")
			logger.Error().Err(err).Msg("failed to resolve stored reading id")
			return 0
		}
		if !ok {
			logger.Warn().Msg("stored reading not visible yet")
			return 0
		}
		id = latest
	}
	return id
}

func (s *Service) raise(ctx context.Context, sess *session, rec storage.ReadingRecord, parameter string, class threshold.Classification, value float64, bounds *threshold.Bounds) storage.AlarmRecord {
	alarm := storage.AlarmRecord{
		Kind:           rec.Kind,
		ReadingID:      rec.ID,
		Parameter:      parameter,
		Classification: class,
		CreatedAt:      rec.ObservedAt,
	}
	s.recorder.AlarmRaised(string(rec.Kind), parameter, class.String())

	logger := sess.logger.With().
		Str("kind", string(rec.Kind)).
		Int("sensor_id", rec.SensorID).
		Str("parameter", parameter).
		Float64("value", value).
		Str("min", bounds.Min.String()).
		Str("max", bounds.Max.String()).
		Logger()
	logger.Warn().Msg(threshold.Label(class, parameter))

	if s.gateway != nil {
		if rec.ID == 0 {
			logger.Error().Msg("alarm not persisted: reading was not stored")
		} else if err := s.gateway.InsertAlarm(ctx, alarm); err != nil {
			s.recorder.PersistFailed("insert_alarm")
			logger.Error().Err(err).Msg("failed to store alarm")
		}
	}

	s.notify(sess, alerting.Notification{
		Kind:           rec.Kind,
		SensorID:       rec.SensorID,
		ReadingID:      rec.ID,
		Parameter:      parameter,
		Classification: class,
		Value:          value,
		Bounds:         *bounds,
		ObservedAt:     rec.ObservedAt,
	})
	return alarm
}

// notify queues note for the delivery goroutine while streaming, or delivers
// it inline when no session loop is running.
func (s *Service) notify(sess *session, note alerting.Notification) {
	if s.notifier == nil {
		return
	}
	if sess.notes == nil {
		s.deliver(note)
		return
	}
	select {
	case sess.notes <- note:
	default:
		sess.logger.Warn().Str("parameter", note.Parameter).Msg("notification queue full; alarm not dispatched")
	}
}

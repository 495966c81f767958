package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
	"sensor-collector/internal/transport"
)

// configure performs the device handshake: silence the stream, set the
// sampling rate, resolve identity and load thresholds for both roles.
func (s *Service) configure(ctx context.Context, sess *session) error {
	if err := s.link.Send(transport.Stop()); err != nil {
		return err
	}
	drained, err := s.drain()
	if err != nil {
		return err
	}
	sess.logger.Debug().Int("lines", drained).Msg("input drained after STOP")

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.link.Send(transport.SetRate(s.opts.FrequencyHz)); err != nil {
		return err
	}
	ack, ok, err := s.link.TryReadLine(s.opts.AckTimeout)
	if err != nil {
		return err
	}
	if ok {
		sess.logger.Debug().Str("ack", ack).Msg("rate acknowledged")
	} else {
		sess.logger.Warn().Int("frequency_hz", s.opts.FrequencyHz).Msg("no acknowledgement for rate change")
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.link.Send(transport.QueryIdentity()); err != nil {
		return err
	}
	identity, err := s.awaitIdentity(ctx, sess)
	if err != nil {
		return err
	}
	sess.identity = identity
	sess.logger.Info().
		Int("temperature_sensor_id", identity.TemperatureSensorID).
		Int("accelerometer_id", identity.AccelerometerID).
		Msg("sensor identity resolved")

	s.registerSensors(ctx, sess)
	s.loadThresholds(ctx, sess)
	return nil
}

// drain discards inbound lines until the link stays quiet for AckTimeout.
// A device that never goes quiet is cut off after a bounded window.
func (s *Service) drain() (int, error) {
	deadline := time.Now().Add(drainFactor * s.opts.AckTimeout)
	count := 0
	for time.Now().Before(deadline) {
		_, ok, err := s.link.TryReadLine(s.opts.AckTimeout)
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		count++
	}
	return count, nil
}

func (s *Service) awaitIdentity(ctx context.Context, sess *session) (sensor.Identity, error) {
	deadline := time.Now().Add(s.opts.IdentityTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return sensor.Identity{}, fmt.Errorf("%w within %s", ErrIdentityUnavailable, s.opts.IdentityTimeout)
		}
		if err := ctx.Err(); err != nil {
			return sensor.Identity{}, err
		}

		line, ok, err := s.link.TryReadLine(remaining)
		if err != nil {
			return sensor.Identity{}, err
		}
		if !ok {
			continue
		}

		identity, err := sensor.DecodeIdentity(line)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, sensor.ErrNoIdentity) && !errors.Is(err, sensor.ErrMalformed) {
			return sensor.Identity{}, err
		}
		sess.logger.Debug().Str("line", line).Msg("skipping non-identity line during handshake")
	}
}

// registerSensors makes sure both device-reported ids exist in the sensor
// registry. A failure is logged; the readings that follow will then fail
// individually.
func (s *Service) registerSensors(ctx context.Context, sess *session) {
	if s.registry == nil {
		return
	}

	sensors := []storage.SensorRecord{
		{ID: sess.identity.TemperatureSensorID, Type: string(sensor.KindTemperature)},
		{ID: sess.identity.AccelerometerID, Type: string(sensor.KindAcceleration)},
	}
	for _, rec := range sensors {
		created, err := s.registry.RegisterSensor(ctx, rec)
		if err != nil {
			s.recorder.PersistFailed("register_sensor")
			sess.logger.Error().Err(err).Int("sensor_id", rec.ID).Msg("failed to register sensor")
			continue
		}
		if created {
			sess.logger.Info().Int("sensor_id", rec.ID).Str("type", rec.Type).Msg("sensor registered")
		}
	}
}

// loadThresholds reads the authoritative bounds for each role. A role with no
// row, or whose lookup fails, has evaluation disabled for the session.
func (s *Service) loadThresholds(ctx context.Context, sess *session) {
	if s.gateway == nil {
		sess.logger.Warn().Err(ErrConfigurationMissing).Msg("no persistence configured; alarm evaluation disabled")
		return
	}

	roles := []struct {
		kind     sensor.Kind
		sensorID int
		target   **threshold.Bounds
	}{
		{sensor.KindTemperature, sess.identity.TemperatureSensorID, &sess.temperature},
		{sensor.KindAcceleration, sess.identity.AccelerometerID, &sess.acceleration},
	}
	for _, role := range roles {
		bounds, err := s.gateway.LatestThreshold(ctx, role.sensorID)
		if err != nil {
			s.recorder.PersistFailed("load_threshold")
			sess.logger.Error().Err(err).
				Str("kind", string(role.kind)).
				Int("sensor_id", role.sensorID).
				Msg("threshold lookup failed; evaluation disabled")
			continue
		}
		if bounds == nil {
			sess.logger.Warn().Err(ErrConfigurationMissing).
				Str("kind", string(role.kind)).
				Int("sensor_id", role.sensorID).
				Msg("evaluation disabled")
			continue
		}
		*role.target = bounds
		sess.logger.Info().
			Str("kind", string(role.kind)).
			Int("sensor_id", role.sensorID).
			Str("min", bounds.Min.String()).
			Str("max", bounds.Max.String()).
			Msg("threshold loaded")
	}
}

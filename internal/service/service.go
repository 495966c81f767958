package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sensor-collector/internal/alerting"
	"sensor-collector/internal/config"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
	"sensor-collector/internal/scheduler"
	"sensor-collector/internal/sensor"
	"sensor-collector/internal/storage"
	"sensor-collector/internal/threshold"
	"sensor-collector/internal/transport"
)

const (
	notifyQueue  = 32
	drainFactor  = 5
	replayPoll   = time.Second
	notifyWindow = 15 * time.Second
)

// Link is the duplex line stream to the sensor board.
type Link interface {
	Send(cmd transport.Command) error
	TryReadLine(timeout time.Duration) (string, bool, error)
	Close() error
}

// Options tune the ingestion loop.
type Options struct {
	FrequencyHz      int
	PollTimeout      time.Duration
	StartupDelay     time.Duration
	AckTimeout       time.Duration
	IdentityTimeout  time.Duration
	AccelerationMode threshold.AxisMode
	LockKey          int64
	Now              func() time.Time
}

// OptionsFromConfig maps runtime configuration onto loop options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := threshold.ParseAxisMode(cfg.Alarms.AccelerationMode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		FrequencyHz:      cfg.Sampling.FrequencyHz,
		PollTimeout:      cfg.Sampling.PollTimeout,
		StartupDelay:     cfg.Sampling.StartupDelay,
		AckTimeout:       cfg.Handshake.AckTimeout,
		IdentityTimeout:  cfg.Handshake.IdentityTimeout,
		AccelerationMode: mode,
		LockKey:          cfg.Database.AdvisoryLockKey,
	}, nil
}

// Service runs one ingestion session at a time: handshake with the device,
// then a fixed-period cycle of read, decode, persist, evaluate, alarm.
type Service struct {
	opts     Options
	link     Link
	gateway  storage.Gateway
	locker   storage.AdvisoryLocker
	notifier alerting.Notifier
	recorder metrics.Recorder
	registry storage.SensorRegistry
	logger   zerolog.Logger

	state   atomic.Int32
	running atomic.Bool

	mu   sync.Mutex
	sess *session
}

// New constructs the ingestion loop. gateway, notifier and recorder may be nil.
func New(opts Options, link Link, gateway storage.Gateway, notifier alerting.Notifier, recorder metrics.Recorder, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccelerationMode == "" {
		opts.AccelerationMode = threshold.AxisMagnitude
	}
	if recorder == nil {
		recorder = (*metrics.Collector)(nil)
	}

	var locker storage.AdvisoryLocker
	if l, ok := gateway.(storage.AdvisoryLocker); ok {
		locker = l
	}
	var registry storage.SensorRegistry
	if r, ok := gateway.(storage.SensorRegistry); ok {
		registry = r
	}

	s := &Service{
		opts:     opts,
		link:     link,
		gateway:  gateway,
		locker:   locker,
		notifier: notifier,
		recorder: recorder,
		registry: registry,
		logger:   logging.Component(logger, "service"),
	}
	s.recorder.SetState(StateIdle.String())
	return s
}

// State reports the current lifecycle state. Safe for concurrent use.
func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.recorder.SetState(st.String())
	if prev != st {
		s.logger.Info().Str("from", prev.String()).Str("to", st.String()).Msg("state changed")
	}
}

// Stop asks a running session to finish. It returns immediately; the loop
// notices within one sampling period, sends STOP to the device and Start
// returns nil.
func (s *Service) Stop() {
	if s.running.CompareAndSwap(true, false) {
		s.logger.Info().Msg("stop requested")
	}
}

func (s *Service) begin() error {
	switch s.State() {
	case StateFaulted:
		return ErrFaulted
	case StateConfiguring, StateStreaming:
		return ErrAlreadyRunning
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return nil
}

// Start runs a full session on the calling goroutine and blocks until it ends.
// It returns nil after Stop or ctx cancellation, and the fatal error after a
// transport failure or failed handshake, in which case the link is closed and
// the Service is Faulted. The terminal state is published only after every
// session resource has been released, so a Stopped Service can Start again.
func (s *Service) Start(ctx context.Context) error {
	if s.link == nil {
		return errors.New("sensor link not configured")
	}
	if s.opts.FrequencyHz <= 0 {
		return fmt.Errorf("sampling frequency must be positive, got %d", s.opts.FrequencyHz)
	}
	if err := s.begin(); err != nil {
		return err
	}

	sess := s.newSession()
	s.setState(StateConfiguring)

	final, err := s.runSession(ctx, sess)
	s.end(final)
	return err
}

// end clears the run flag and then publishes the terminal state.
func (s *Service) end(final State) {
	s.running.Store(false)
	s.setState(final)
}

func (s *Service) runSession(ctx context.Context, sess *session) (State, error) {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return s.fault(sess, err)
	}
	if unlock != nil {
		defer unlock()
	}

	if err := s.configure(ctx, sess); err != nil {
		if ctx.Err() != nil {
			return s.finish(sess)
		}
		return s.fault(sess, err)
	}

	if err := s.link.Send(transport.Start()); err != nil {
		return s.fault(sess, err)
	}

	stopNotify := s.startNotifier(sess)
	defer stopNotify()

	s.setState(StateStreaming)
	sched := scheduler.New(scheduler.Options{
		Interval:     time.Second / time.Duration(s.opts.FrequencyHz),
		StartupDelay: s.opts.StartupDelay,
	}, sess.logger)

	err = sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
		return s.cycle(ctx, sess)
	})
	switch {
	case errors.Is(err, scheduler.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return s.finish(sess)
	default:
		return s.fault(sess, err)
	}
}

// finish sends STOP and discards the differential state.
func (s *Service) finish(sess *session) (State, error) {
	sess.tracker.Reset()
	if err := s.link.Send(transport.Stop()); err != nil {
		return s.fault(sess, err)
	}
	sess.logger.Info().Msg("session stopped")
	return StateStopped, nil
}

func (s *Service) fault(sess *session, err error) (State, error) {
	sess.tracker.Reset()
	if closeErr := s.link.Close(); closeErr != nil {
		sess.logger.Debug().Err(closeErr).Msg("close link after fault")
	}
	sess.logger.Error().Err(err).Msg("ingestion loop faulted")
	return StateFaulted, err
}

func (s *Service) cycle(ctx context.Context, sess *session) error {
	if !s.running.Load() {
		return scheduler.Halt(nil)
	}

	started := time.Now()
	defer func() { s.recorder.CycleDuration(time.Since(started)) }()

	line, ok, err := s.link.TryReadLine(s.opts.PollTimeout)
	if err != nil {
		return scheduler.Halt(err)
	}
	if !ok {
		return nil
	}
	s.processLine(ctx, sess, line)
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return unlock, nil
}

func (s *Service) newSession() *session {
	id := uuid.NewString()
	sess := &session{
		id:     id,
		logger: s.logger.With().Str("session_id", id).Logger(),
	}
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	return sess
}

// Prime prepares a session without a device handshake, for simulation.
// Nil bounds disable evaluation for that role.
func (s *Service) Prime(identity sensor.Identity, temperature, acceleration *threshold.Bounds) {
	sess := s.newSession()
	sess.identity = identity
	sess.temperature = temperature
	sess.acceleration = acceleration
}

// ProcessLine runs one cycle's worth of work on line against the primed
// session. It must not be called while Start or Replay is running.
func (s *Service) ProcessLine(ctx context.Context, line string) (Outcome, error) {
	if s.running.Load() {
		return Outcome{}, ErrAlreadyRunning
	}
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		sess = s.newSession()
	}
	return s.processLine(ctx, sess, line), nil
}

// ReplaySummary counts what a replay ingested.
type ReplaySummary struct {
	Lines    int
	Invalid  int
	Readings int
	Alarms   int
}

// Replay feeds every line from the link through the pipeline as fast as it
// arrives, using thresholds loaded for identity, until the link reports end
// of stream or ctx is cancelled. No commands are sent.
func (s *Service) Replay(ctx context.Context, identity sensor.Identity) (ReplaySummary, error) {
	var summary ReplaySummary
	if s.link == nil {
		return summary, errors.New("replay source not configured")
	}
	if err := s.begin(); err != nil {
		return summary, err
	}

	sess := s.newSession()
	sess.identity = identity
	s.setState(StateConfiguring)

	final, err := s.replay(ctx, sess, &summary)
	s.end(final)
	return summary, err
}

func (s *Service) replay(ctx context.Context, sess *session, summary *ReplaySummary) (State, error) {
	s.registerSensors(ctx, sess)
	s.loadThresholds(ctx, sess)
	s.setState(StateStreaming)

	for {
		if ctx.Err() != nil {
			sess.logger.Info().Int("lines", summary.Lines).Msg("replay interrupted")
			return StateStopped, nil
		}
		line, ok, err := s.link.TryReadLine(replayPoll)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return StateStopped, nil
			}
			return s.fault(sess, err)
		}
		if !ok {
			continue
		}

		out := s.processLine(ctx, sess, line)
		summary.Lines++
		if !out.Valid {
			summary.Invalid++
		}
		if out.Temperature != nil {
			summary.Readings++
		}
		if out.Acceleration != nil {
			summary.Readings++
		}
		summary.Alarms += len(out.Alarms)
	}
}

// startNotifier gives sess its own delivery queue and returns a func that
// drains and retires it.
func (s *Service) startNotifier(sess *session) func() {
	if s.notifier == nil {
		return func() {}
	}
	notes := make(chan alerting.Notification, notifyQueue)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for note := range notes {
			s.deliver(note)
		}
	}()
	sess.notes = notes

	return func() {
		sess.notes = nil
		close(notes)
		<-done
	}
}

func (s *Service) deliver(note alerting.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyWindow)
	defer cancel()
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).
			Str("parameter", note.Parameter).
			Msg("failed to dispatch alarm notification")
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/threshold"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrUnknownKind indicates a reading kind with no backing table.
	ErrUnknownKind = errors.New("storage: unknown reading kind")
)

const (
	insertTemperatureSQL = `INSERT INTO temperature_readings (
        sensor_id,
        observed_at,
        temperature
    ) VALUES (
        $1,$2,$3
    )
    RETURNING reading_id;`

	insertAccelerationSQL = `INSERT INTO acceleration_readings (
        sensor_id,
        observed_at,
        acceleration_x,
        acceleration_y,
        acceleration_z,
        diff_acceleration_x,
        diff_acceleration_y,
        diff_acceleration_z
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING reading_id;`

	latestTemperatureIDSQL  = `SELECT reading_id FROM temperature_readings ORDER BY reading_id DESC LIMIT 1;`
	latestAccelerationIDSQL = `SELECT reading_id FROM acceleration_readings ORDER BY reading_id DESC LIMIT 1;`

	listRecentTemperatureSQL = `SELECT
        reading_id,
        sensor_id,
        observed_at,
        temperature
    FROM temperature_readings
    ORDER BY reading_id DESC
    LIMIT $1;`

	listRecentAccelerationSQL = `SELECT
        reading_id,
        sensor_id,
        observed_at,
        acceleration_x,
        acceleration_y,
        acceleration_z,
        diff_acceleration_x,
        diff_acceleration_y,
        diff_acceleration_z
    FROM acceleration_readings
    ORDER BY reading_id DESC
    LIMIT $1;`

	listTemperatureBetweenSQL = `SELECT
        reading_id,
        sensor_id,
        observed_at,
        temperature
    FROM temperature_readings
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY reading_id
    LIMIT $3;`

	listAccelerationBetweenSQL = `SELECT
        reading_id,
        sensor_id,
        observed_at,
        acceleration_x,
        acceleration_y,
        acceleration_z,
        diff_acceleration_x,
        diff_acceleration_y,
        diff_acceleration_z
    FROM acceleration_readings
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY reading_id
    LIMIT $3;`

	insertTemperatureAlarmSQL = `INSERT INTO temperature_alarms (
        reading_id,
        parameter,
        classification
    ) VALUES (
        $1,$2,$3
    );`

	insertAccelerationAlarmSQL = `INSERT INTO acceleration_alarms (
        reading_id,
        parameter,
        classification
    ) VALUES (
        $1,$2,$3
    );`

	listRecentAlarmsSQL = `SELECT alarm_id, kind, reading_id, parameter, classification, created_at
    FROM (
        SELECT alarm_id, 'temperature' AS kind, reading_id, parameter, classification, created_at
        FROM temperature_alarms
        UNION ALL
        SELECT alarm_id, 'acceleration' AS kind, reading_id, parameter, classification, created_at
        FROM acceleration_alarms
    ) alarms
    ORDER BY created_at DESC
    LIMIT $1;`

	latestThresholdSQL = `SELECT
        threshold_id,
        sensor_id,
        parameter,
        min_value::text,
        max_value::text
    FROM alarm_thresholds
    WHERE sensor_id = $1
    ORDER BY threshold_id DESC
    LIMIT 1;`

	insertThresholdSQL = `INSERT INTO alarm_thresholds (
        sensor_id,
        parameter,
        min_value,
        max_value
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING threshold_id;`

	registerSensorSQL = `INSERT INTO sensors (
        sensor_id,
        type,
        location,
        installation_date
    ) VALUES (
        $1,NULLIF($2,''),NULLIF($3,''),CURRENT_DATE
    )
    ON CONFLICT (sensor_id) DO NOTHING;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Gateway is everything the ingestion loop needs from persistence. Writes are
// committed one statement at a time and never retried, so each call delivers
// at most once. InsertReading may return id 0 when a backend assigns ids
// asynchronously; callers then resolve the id through LatestReadingID.
type Gateway interface {
	InsertReading(ctx context.Context, rec ReadingRecord) (int64, error)
	LatestReadingID(ctx context.Context, kind sensor.Kind) (int64, bool, error)
	InsertAlarm(ctx context.Context, alarm AlarmRecord) error
	LatestThreshold(ctx context.Context, sensorID int) (*threshold.Bounds, error)
}

// ReadingStore defines read operations used by the show and export commands.
type ReadingStore interface {
	ListRecentReadings(ctx context.Context, kind sensor.Kind, limit int) ([]ReadingRecord, error)
	ListReadingsBetween(ctx context.Context, kind sensor.Kind, from, to time.Time, limit int) ([]ReadingRecord, error)
}

// AlarmStore defines alarm auditing queries.
type AlarmStore interface {
	ListRecentAlarms(ctx context.Context, limit int) ([]AlarmRecord, error)
}

// ThresholdStore defines threshold maintenance.
type ThresholdStore interface {
	InsertThreshold(ctx context.Context, b threshold.Bounds) (int64, error)
}

// SensorRegistry records sensors so readings and thresholds satisfy their
// foreign keys.
type SensorRegistry interface {
	RegisterSensor(ctx context.Context, rec SensorRecord) (bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// DB is the subset of pgxpool.Pool the store issues statements through.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store aggregates access to readings, alarms and thresholds.
type Store struct {
	pool *pgxpool.Pool
	db   DB
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	if pool != nil {
		s.db = pool
	}
	return s
}

// NewStoreWithDB builds a Store over any DB. Advisory locks are unavailable.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// TryAdvisoryLock attempts to acquire a session-level advisory lock on a
// dedicated connection and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// a broken connection drops the lock server-side anyway
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertReading persists a reading and returns its id.
func (s *Store) InsertReading(ctx context.Context, rec ReadingRecord) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var row pgx.Row
	switch rec.Kind {
	case sensor.KindTemperature:
		row = db.QueryRow(ctx, insertTemperatureSQL,
			rec.SensorID,
			rec.ObservedAt,
			rec.Temperature,
		)
	case sensor.KindAcceleration:
		row = db.QueryRow(ctx, insertAccelerationSQL,
			rec.SensorID,
			rec.ObservedAt,
			rec.Acceleration.X,
			rec.Acceleration.Y,
			rec.Acceleration.Z,
			rec.Delta.DX,
			rec.Delta.DY,
			rec.Delta.DZ,
		)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}

	var id int64
	if scanErr := row.Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert %s reading: %w", rec.Kind, scanErr)
	}
	return id, nil
}

// LatestReadingID returns the highest reading id of kind. ok is false when
// the table is empty.
func (s *Store) LatestReadingID(ctx context.Context, kind sensor.Kind) (int64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, false, err
	}

	var query string
	switch kind {
	case sensor.KindTemperature:
		query = latestTemperatureIDSQL
	case sensor.KindAcceleration:
		query = latestAccelerationIDSQL
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var id int64
	if scanErr := db.QueryRow(ctx, query).Scan(&id); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("latest %s reading id: %w", kind, scanErr)
	}
	return id, true, nil
}

// InsertAlarm persists an alarm against its reading.
func (s *Store) InsertAlarm(ctx context.Context, alarm AlarmRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	var query string
	switch alarm.Kind {
	case sensor.KindTemperature:
		query = insertTemperatureAlarmSQL
	case sensor.KindAcceleration:
		query = insertAccelerationAlarmSQL
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, alarm.Kind)
	}

	if _, execErr := db.Exec(ctx, query, alarm.ReadingID, alarm.Parameter, alarm.Classification.String()); execErr != nil {
		return fmt.Errorf("insert %s alarm: %w", alarm.Kind, execErr)
	}
	return nil
}

// RegisterSensor inserts rec unless its id is already registered. The bool
// reports whether a new row was written.
func (s *Store) RegisterSensor(ctx context.Context, rec SensorRecord) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	if rec.ID <= 0 {
		return false, fmt.Errorf("invalid sensor id %d", rec.ID)
	}

	tag, execErr := db.Exec(ctx, registerSensorSQL, rec.ID, rec.Type, rec.Location)
	if execErr != nil {
		return false, fmt.Errorf("register sensor %d: %w", rec.ID, execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// LatestThreshold returns the most recently inserted threshold row for the
// sensor, or nil when none exists.
func (s *Store) LatestThreshold(ctx context.Context, sensorID int) (*threshold.Bounds, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var (
		b              threshold.Bounds
		minStr, maxStr string
	)
	scanErr := db.QueryRow(ctx, latestThresholdSQL, sensorID).Scan(
		&b.ID,
		&b.SensorID,
		&b.Parameter,
		&minStr,
		&maxStr,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest threshold: %w", scanErr)
	}

	var convErr error
	b.Min, convErr = decimal.NewFromString(minStr)
	if convErr != nil {
		return nil, fmt.Errorf("parse min value: %w", convErr)
	}
	b.Max, convErr = decimal.NewFromString(maxStr)
	if convErr != nil {
		return nil, fmt.Errorf("parse max value: %w", convErr)
	}
	return &b, nil
}

// InsertThreshold appends a threshold row; it becomes authoritative for its
// sensor at the next session start.
func (s *Store) InsertThreshold(ctx context.Context, b threshold.Bounds) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	if b.Min.GreaterThan(b.Max) {
		return 0, fmt.Errorf("min value %s exceeds max value %s", b.Min, b.Max)
	}

	var id int64
	if scanErr := db.QueryRow(ctx, insertThresholdSQL,
		b.SensorID,
		b.Parameter,
		b.Min.String(),
		b.Max.String(),
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert threshold: %w", scanErr)
	}
	return id, nil
}

// ListRecentReadings lists the newest readings of kind, newest first.
func (s *Store) ListRecentReadings(ctx context.Context, kind sensor.Kind, limit int) ([]ReadingRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var query string
	switch kind {
	case sensor.KindTemperature:
		query = listRecentTemperatureSQL
	case sensor.KindAcceleration:
		query = listRecentAccelerationSQL
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	rows, queryErr := db.Query(ctx, query, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent %s readings: %w", kind, queryErr)
	}
	return collectReadings(rows, kind, limit)
}

// ListReadingsBetween lists readings of kind observed within [from, to).
func (s *Store) ListReadingsBetween(ctx context.Context, kind sensor.Kind, from, to time.Time, limit int) ([]ReadingRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var query string
	switch kind {
	case sensor.KindTemperature:
		query = listTemperatureBetweenSQL
	case sensor.KindAcceleration:
		query = listAccelerationBetweenSQL
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	rows, queryErr := db.Query(ctx, query, from, to, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list %s readings between: %w", kind, queryErr)
	}
	return collectReadings(rows, kind, 0)
}

// ListRecentAlarms lists alarms of both kinds, newest first.
func (s *Store) ListRecentAlarms(ctx context.Context, limit int) ([]AlarmRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listRecentAlarmsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alarms: %w", queryErr)
	}
	defer rows.Close()

	alarms := make([]AlarmRecord, 0, limit)
	for rows.Next() {
		var (
			rec            AlarmRecord
			kind, classStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&kind,
			&rec.ReadingID,
			&rec.Parameter,
			&classStr,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Kind = sensor.Kind(kind)

		var convErr error
		rec.Classification, convErr = threshold.ParseClassification(classStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse classification: %w", convErr)
		}
		alarms = append(alarms, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alarms, nil
}

func collectReadings(rows pgx.Rows, kind sensor.Kind, capacity int) ([]ReadingRecord, error) {
	defer rows.Close()

	readings := make([]ReadingRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanReading(rows, kind)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

func scanReading(rows pgx.Rows, kind sensor.Kind) (ReadingRecord, error) {
	rec := ReadingRecord{Kind: kind}
	if kind == sensor.KindTemperature {
		if err := rows.Scan(&rec.ID, &rec.SensorID, &rec.ObservedAt, &rec.Temperature); err != nil {
			return ReadingRecord{}, err
		}
		return rec, nil
	}

	if err := rows.Scan(
		&rec.ID,
		&rec.SensorID,
		&rec.ObservedAt,
		&rec.Acceleration.X,
		&rec.Acceleration.Y,
		&rec.Acceleration.Z,
		&rec.Delta.DX,
		&rec.Delta.DY,
		&rec.Delta.DZ,
	); err != nil {
		return ReadingRecord{}, err
	}
	return rec, nil
}

var (
	_ Gateway        = (*Store)(nil)
	_ ReadingStore   = (*Store)(nil)
	_ AlarmStore     = (*Store)(nil)
	_ ThresholdStore = (*Store)(nil)
	_ SensorRegistry = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

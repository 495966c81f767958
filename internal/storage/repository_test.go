package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/threshold"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStoreWithDB(mock), mock
}

func TestInsertTemperatureReading(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO temperature_readings")).
		WithArgs(1, ts, 30.0).
		WillReturnRows(pgxmock.NewRows([]string{"reading_id"}).AddRow(int64(41)))

	id, err := store.InsertReading(context.Background(), ReadingRecord{
		Kind:        sensor.KindTemperature,
		SensorID:    1,
		ObservedAt:  ts,
		Temperature: 30,
	})
	require.NoError(t, err)
	require.Equal(t, int64(41), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAccelerationReading(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO acceleration_readings")).
		WithArgs(2, ts, 20.0, 0.0, 0.0, -20.0, 0.0, 0.0).
		WillReturnRows(pgxmock.NewRows([]string{"reading_id"}).AddRow(int64(7)))

	id, err := store.InsertReading(context.Background(), ReadingRecord{
		Kind:         sensor.KindAcceleration,
		SensorID:     2,
		ObservedAt:   ts,
		Acceleration: sensor.Vector{X: 20},
		Delta:        sensor.Delta{DX: -20},
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReadingFailureIsWrapped(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO temperature_readings")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	_, err := store.InsertReading(context.Background(), ReadingRecord{Kind: sensor.KindTemperature})
	require.ErrorIs(t, err, boom)

	_, err = store.InsertReading(context.Background(), ReadingRecord{Kind: "humidity"})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestLatestReadingID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(latestAccelerationIDSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"reading_id"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta(latestTemperatureIDSQL)).
		WillReturnError(pgx.ErrNoRows)

	id, ok, err := store.LatestReadingID(context.Background(), sensor.KindAcceleration)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(9), id)

	_, ok, err = store.LatestReadingID(context.Background(), sensor.KindTemperature)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAlarm(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO acceleration_alarms")).
		WithArgs(int64(7), "x", "HIGH").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.InsertAlarm(context.Background(), AlarmRecord{
		Kind:           sensor.KindAcceleration,
		ReadingID:      7,
		Parameter:      "x",
		Classification: threshold.High,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterSensor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sensors")).
		WithArgs(1, "temperature", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (sensor_id) DO NOTHING")).
		WithArgs(1, "temperature", "lab").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := store.RegisterSensor(context.Background(), SensorRecord{ID: 1, Type: "temperature"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.RegisterSensor(context.Background(), SensorRecord{ID: 1, Type: "temperature", Location: "lab"})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterSensorErrors(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.RegisterSensor(context.Background(), SensorRecord{ID: 0, Type: "temperature"})
	require.ErrorContains(t, err, "invalid sensor id")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sensors")).
		WithArgs(2, "acceleration", "").
		WillReturnError(errors.New("permission denied"))

	_, err = store.RegisterSensor(context.Background(), SensorRecord{ID: 2, Type: "acceleration"})
	require.ErrorContains(t, err, "register sensor 2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestThreshold(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM alarm_thresholds")).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{"threshold_id", "sensor_id", "parameter", "min_value", "max_value"}).
			AddRow(int64(3), 1, "T", "-4", "28"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM alarm_thresholds")).
		WithArgs(2).
		WillReturnError(pgx.ErrNoRows)

	b, err := store.LatestThreshold(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, int64(3), b.ID)
	require.True(t, b.Min.Equal(decimal.NewFromInt(-4)))
	require.True(t, b.Max.Equal(decimal.NewFromInt(28)))

	b, err = store.LatestThreshold(context.Background(), 2)
	require.NoError(t, err)
	require.Nil(t, b)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertThresholdRejectsInvertedBounds(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.InsertThreshold(context.Background(), threshold.Bounds{
		SensorID: 1, Parameter: "T", Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(5),
	})
	require.Error(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alarm_thresholds")).
		WithArgs(2, "A", "-15", "15").
		WillReturnRows(pgxmock.NewRows([]string{"threshold_id"}).AddRow(int64(12)))

	id, err := store.InsertThreshold(context.Background(), threshold.Bounds{
		SensorID: 2, Parameter: "A", Min: decimal.NewFromInt(-15), Max: decimal.NewFromInt(15),
	})
	require.NoError(t, err)
	require.Equal(t, int64(12), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentAlarms(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UNION ALL")).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"alarm_id", "kind", "reading_id", "parameter", "classification", "created_at"}).
			AddRow(int64(2), "acceleration", int64(7), "x", "LOW", created).
			AddRow(int64(1), "temperature", int64(41), "temperature", "HIGH", created))

	alarms, err := store.ListRecentAlarms(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, alarms, 2)
	require.Equal(t, sensor.KindAcceleration, alarms[0].Kind)
	require.Equal(t, threshold.Low, alarms[0].Classification)
	require.Equal(t, threshold.High, alarms[1].Classification)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentReadings(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM acceleration_readings")).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"reading_id", "sensor_id", "observed_at", "x", "y", "z", "dx", "dy", "dz"}).
			AddRow(int64(7), 2, ts, 20.0, 0.0, 0.0, -20.0, 0.0, 0.0))

	readings, err := store.ListRecentReadings(context.Background(), sensor.KindAcceleration, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	require.Equal(t, sensor.Delta{DX: -20}, readings[0].Delta)
	require.Equal(t, sensor.Vector{X: 20}, readings[0].Acceleration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWithoutPool(t *testing.T) {
	store := NewStore(nil)

	_, err := store.InsertReading(context.Background(), ReadingRecord{Kind: sensor.KindTemperature})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = store.TryAdvisoryLock(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotConfigured)
}

// Package store provides the append-only reading store: validated gateway and
// sensor readings persisted to sqlite, queryable per device by time range.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/c360/meshtel/errors"
	"github.com/c360/meshtel/health"
	"github.com/c360/meshtel/pkg/retry"
)

// Schema for the devices table and the two append-only reading tables.
// Timestamps are stored as Unix seconds; device-reported timestamps carry
// second precision and no timezone, so the integer form is lossless and keeps
// range predicates a plain numeric comparison.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	mac_address  TEXT NOT NULL UNIQUE,
	internal_id  INTEGER NOT NULL DEFAULT 0,
	info         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS gateway_readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	gateway_id  INTEGER NOT NULL REFERENCES devices(id),
	timestamp   INTEGER NOT NULL,
	rssi        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS temperature_readings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id    INTEGER NOT NULL REFERENCES devices(id),
	timestamp    INTEGER NOT NULL,
	temperature  REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gateway_readings_device_ts
	ON gateway_readings(gateway_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_temperature_readings_device_ts
	ON temperature_readings(device_id, timestamp);
`

// TimeRange bounds a reading query. Zero values mean unbounded on that side;
// both bounds are inclusive (from <= timestamp <= to).
type TimeRange struct {
	From time.Time
	To   time.Time
}

// GatewayReading is a persisted link-quality reading.
type GatewayReading struct {
	ID        int64     `json:"id"`
	GatewayID int64     `json:"gateway_id"`
	Timestamp time.Time `json:"-"`
	RSSI      int       `json:"rssi"`
}

// SensorReading is a persisted temperature reading.
type SensorReading struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"device_id"`
	Timestamp   time.Time `json:"-"`
	Temperature float64   `json:"temperature"`
}

// Store is the sqlite-backed reading store. Readings are immutable once
// appended; the store never updates or deletes them.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	insertGateway *sql.Stmt
	insertSensor  *sql.Stmt

	startTime  time.Time
	errorCount atomic.Int64
}

// Open opens (or creates) the sqlite database at path and verifies the
// connection. Use ":memory:" for an ephemeral store in tests.
//
// sqlite allows a single writer; the pool is capped at one connection so
// concurrent pipeline invocations serialize on the handle instead of
// surfacing busy errors.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reading-store")

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.WrapFatal(err, "reading-store", "Open", "open database")
	}
	db.SetMaxOpenConns(1)

	pingOperation := func() error {
		return db.PingContext(ctx)
	}
	if err := retry.Do(ctx, retry.DefaultConfig(), pingOperation); err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(err, "reading-store", "Open", "database ping")
	}

	logger.Info("reading store opened", "path", path)

	return &Store{
		db:        db,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// DB exposes the underlying handle for collaborators sharing the same
// database (the device directory reads the devices table).
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the tables and indexes if they do not exist and
// prepares the insert statements. Provisioning of devices is out-of-band;
// this only bootstraps the table shapes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapFatal(err, "reading-store", "EnsureSchema", "schema creation")
	}

	var err error
	s.insertGateway, err = s.db.PrepareContext(ctx,
		`INSERT INTO gateway_readings (gateway_id, timestamp, rssi) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.WrapFatal(err, "reading-store", "EnsureSchema", "prepare gateway insert")
	}

	s.insertSensor, err = s.db.PrepareContext(ctx,
		`INSERT INTO temperature_readings (device_id, timestamp, temperature) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.WrapFatal(err, "reading-store", "EnsureSchema", "prepare sensor insert")
	}

	return nil
}

// AppendGateway persists one gateway reading and returns its record id.
// The insert commits before returning; there is no batching across messages.
func (s *Store) AppendGateway(ctx context.Context, deviceID int64, ts time.Time, rssi int) (int64, error) {
	res, err := s.insertGateway.ExecContext(ctx, deviceID, ts.Unix(), rssi)
	if err != nil {
		s.errorCount.Add(1)
		return 0, errors.WrapTransient(err, "reading-store", "AppendGateway", "insert")
	}
	return res.LastInsertId()
}

// AppendSensor persists one temperature reading and returns its record id.
func (s *Store) AppendSensor(ctx context.Context, deviceID int64, ts time.Time, temperature float64) (int64, error) {
	res, err := s.insertSensor.ExecContext(ctx, deviceID, ts.Unix(), temperature)
	if err != nil {
		s.errorCount.Add(1)
		return 0, errors.WrapTransient(err, "reading-store", "AppendSensor", "insert")
	}
	return res.LastInsertId()
}

// rangePredicate appends the matching timestamp predicate for the four range
// modes: unbounded, lower-bounded, upper-bounded, bounded-both.
func rangePredicate(r TimeRange, args []any) (string, []any) {
	switch {
	case !r.From.IsZero() && !r.To.IsZero():
		return " AND timestamp >= ? AND timestamp <= ?", append(args, r.From.Unix(), r.To.Unix())
	case !r.From.IsZero():
		return " AND timestamp >= ?", append(args, r.From.Unix())
	case !r.To.IsZero():
		return " AND timestamp <= ?", append(args, r.To.Unix())
	default:
		return "", args
	}
}

// GatewayReadings returns the gateway readings for a device within the range,
// newest first. An empty result set is an empty slice, not an error.
func (s *Store) GatewayReadings(ctx context.Context, deviceID int64, r TimeRange) ([]GatewayReading, error) {
	query := `SELECT id, gateway_id, timestamp, rssi FROM gateway_readings WHERE gateway_id = ?`
	args := []any{deviceID}
	predicate, args := rangePredicate(r, args)
	query += predicate + " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.errorCount.Add(1)
		return nil, errors.WrapTransient(err, "reading-store", "GatewayReadings", "query")
	}
	defer rows.Close()

	readings := []GatewayReading{}
	for rows.Next() {
		var reading GatewayReading
		var unix int64
		if err := rows.Scan(&reading.ID, &reading.GatewayID, &unix, &reading.RSSI); err != nil {
			s.errorCount.Add(1)
			return nil, errors.WrapTransient(err, "reading-store", "GatewayReadings", "row scan")
		}
		reading.Timestamp = time.Unix(unix, 0).UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		s.errorCount.Add(1)
		return nil, errors.WrapTransient(err, "reading-store", "GatewayReadings", "row iteration")
	}

	return readings, nil
}

// SensorReadings returns the temperature readings for a device within the
// range, newest first.
func (s *Store) SensorReadings(ctx context.Context, deviceID int64, r TimeRange) ([]SensorReading, error) {
	query := `SELECT id, device_id, timestamp, temperature FROM temperature_readings WHERE device_id = ?`
	args := []any{deviceID}
	predicate, args := rangePredicate(r, args)
	query += predicate + " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.errorCount.Add(1)
		return nil, errors.WrapTransient(err, "reading-store", "SensorReadings", "query")
	}
	defer rows.Close()

	readings := []SensorReading{}
	for rows.Next() {
		var reading SensorReading
		var unix int64
		if err := rows.Scan(&reading.ID, &reading.DeviceID, &unix, &reading.Temperature); err != nil {
			s.errorCount.Add(1)
			return nil, errors.WrapTransient(err, "reading-store", "SensorReadings", "row scan")
		}
		reading.Timestamp = time.Unix(unix, 0).UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		s.errorCount.Add(1)
		return nil, errors.WrapTransient(err, "reading-store", "SensorReadings", "row iteration")
	}

	return readings, nil
}

// Health returns the current health status of the store
func (s *Store) Health() health.Status {
	status := health.NewHealthy("reading-store", "database reachable")
	if err := s.db.Ping(); err != nil {
		status = health.NewUnhealthy("reading-store", "database ping failed")
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:     time.Since(s.startTime),
		ErrorCount: int(s.errorCount.Load()),
	})
}

// Close releases the prepared statements and the database handle.
func (s *Store) Close() error {
	if s.insertGateway != nil {
		_ = s.insertGateway.Close()
	}
	if s.insertSensor != nil {
		_ = s.insertSensor.Close()
	}
	return s.db.Close()
}

package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opendma/qdma-core/internal/device"
	"github.com/opendma/qdma-core/internal/infrastructure/database"
)

// writeTimeout bounds each recorder write. Lifecycle operations must not
// stall on a slow disk.
const writeTimeout = 2 * time.Second

// ErrNotFound is returned when a device has no inventory row.
var ErrNotFound = errors.New("inventory: device not found")

// Logger is the minimal logging surface the store needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Record is a device inventory row.
type Record struct {
	BDF        uint32
	Name       string
	Idx        int
	QSetsMax   int
	VFMax      int
	State      device.ConfigState
	AttachedAt time.Time
	DetachedAt *time.Time
}

// Event is one lifecycle event log row.
type Event struct {
	ID        int64
	BDF       uint32
	Name      string
	Event     string
	CreatedAt time.Time
}

// Store persists lifecycle history. It implements device.Recorder.
type Store struct {
	db     *database.DB
	logger Logger
}

// New creates a store over an opened database. A nil logger is replaced
// with a silent one.
func New(db *database.DB, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{db: db, logger: logger}
}

// DeviceAttached upserts the device row and logs an attach event.
func (s *Store) DeviceAttached(conf device.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (bdf, name, idx, qsets_max, vf_max, state, attached_at, detached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(bdf) DO UPDATE SET
			name = excluded.name,
			idx = excluded.idx,
			qsets_max = excluded.qsets_max,
			vf_max = excluded.vf_max,
			state = excluded.state,
			attached_at = excluded.attached_at,
			detached_at = NULL`,
		conf.BDF, conf.Name, conf.Idx, conf.QSetsMax, conf.VFMax, int(conf.State), now,
	)
	if err != nil {
		s.logger.Warn("inventory attach write failed", "device", conf.Name, "error", err)
		return
	}

	s.logEvent(ctx, conf, "attached")
}

// DeviceOnline logs an online event.
func (s *Store) DeviceOnline(conf device.Config) {
	s.recordTransition(conf, "online")
}

// DeviceOffline logs an offline event.
func (s *Store) DeviceOffline(conf device.Config) {
	s.recordTransition(conf, "offline")
}

// DeviceDetached marks the device row detached and logs a detach event.
func (s *Store) DeviceDetached(conf device.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		"UPDATE devices SET detached_at = ?, state = ? WHERE bdf = ?",
		now, int(conf.State), conf.BDF,
	)
	if err != nil {
		s.logger.Warn("inventory detach write failed", "device", conf.Name, "error", err)
		return
	}

	s.logEvent(ctx, conf, "detached")
}

// recordTransition refreshes the stored state and appends an event row.
func (s *Store) recordTransition(conf device.Config, event string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"UPDATE devices SET state = ? WHERE bdf = ?",
		int(conf.State), conf.BDF,
	)
	if err != nil {
		s.logger.Warn("inventory state write failed", "device", conf.Name, "error", err)
		return
	}

	s.logEvent(ctx, conf, event)
}

func (s *Store) logEvent(ctx context.Context, conf device.Config, event string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (bdf, name, event, created_at)
		VALUES (?, ?, ?, ?)`,
		conf.BDF, conf.Name, event, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Warn("inventory event write failed",
			"device", conf.Name, "event", event, "error", err)
	}
}

// Device returns the inventory row for a packed bus address.
func (s *Store) Device(ctx context.Context, bdf uint32) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bdf, name, idx, qsets_max, vf_max, state, attached_at, detached_at
		FROM devices WHERE bdf = ?`, bdf)

	var (
		r          Record
		state      int
		attachedAt string
		detachedAt sql.NullString
	)
	err := row.Scan(&r.BDF, &r.Name, &r.Idx, &r.QSetsMax, &r.VFMax, &state, &attachedAt, &detachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %05x", ErrNotFound, bdf)
	}
	if err != nil {
		return Record{}, fmt.Errorf("inventory device query: %w", err)
	}

	r.State = device.ConfigState(state)
	r.AttachedAt, _ = time.Parse(time.RFC3339, attachedAt)
	if detachedAt.Valid {
		t, _ := time.Parse(time.RFC3339, detachedAt.String)
		r.DetachedAt = &t
	}
	return r, nil
}

// Events returns the lifecycle event log for a device, oldest first.
func (s *Store) Events(ctx context.Context, bdf uint32) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bdf, name, event, created_at
		FROM lifecycle_events WHERE bdf = ? ORDER BY id`, bdf)
	if err != nil {
		return nil, fmt.Errorf("inventory events query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.BDF, &e.Name, &e.Event, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// Attached returns the rows of devices currently attached, insertion
// order by packed bus address.
func (s *Store) Attached(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bdf, name, idx, qsets_max, vf_max, state, attached_at, detached_at
		FROM devices WHERE detached_at IS NULL ORDER BY bdf`)
	if err != nil {
		return nil, fmt.Errorf("inventory attached query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r          Record
			state      int
			attachedAt string
			detachedAt sql.NullString
		)
		if err := rows.Scan(&r.BDF, &r.Name, &r.Idx, &r.QSetsMax, &r.VFMax, &state, &attachedAt, &detachedAt); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		r.State = device.ConfigState(state)
		r.AttachedAt, _ = time.Parse(time.RFC3339, attachedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return records, nil
}

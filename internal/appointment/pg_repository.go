package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PgStore persists appointments in Postgres. scheduled_at is stored as a
// timestamp without time zone holding the clinic wall clock; loc is the
// location values are rebuilt in when read back.
type PgStore struct {
	pool *pgxpool.Pool
	loc  *time.Location

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Snapshot)
}

func NewPgStore(pool *pgxpool.Pool, loc *time.Location) *PgStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PgStore{pool: pool, loc: loc, subs: make(map[int]func(Snapshot))}
}

// Helpers

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PgStore) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var scheduledAt time.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&scheduledAt,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ScheduledAt = r.fromWallClock(scheduledAt)
	return &a, nil
}

func (r *PgStore) toWallClock(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func (r *PgStore) fromWallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, r.loc)
}

func (r *PgStore) readSnapshot(ctx context.Context, q querier) (Snapshot, error) {
	var version int64
	if err := q.QueryRow(ctx, `
		SELECT version FROM appointment_store_version WHERE id = 1
	`).Scan(&version); err != nil {
		return Snapshot{}, fmt.Errorf("read store version: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, doctor_id, patient_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		ORDER BY scheduled_at, id
	`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{Version: uint64(version)}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Appointments = append(snap.Appointments, *a)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

// Interface methods

func (r *PgStore) Snapshot(ctx context.Context) (Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := r.readSnapshot(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, tx.Commit(ctx)
}

func (r *PgStore) Apply(ctx context.Context, baseVersion uint64, cs Changeset) (Snapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	if err := tx.QueryRow(ctx, `
		SELECT version FROM appointment_store_version WHERE id = 1 FOR UPDATE
	`).Scan(&current); err != nil {
		return Snapshot{}, fmt.Errorf("lock store version: %w", err)
	}
	if uint64(current) != baseVersion {
		return Snapshot{}, ErrStaleSnapshot
	}

	at := cs.At
	if at.IsZero() {
		at = time.Now()
	}

	for _, u := range cs.Updates {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2,
			    updated_at = $4
			WHERE id = $1
			  AND status = $3
		`, u.ID, u.To, u.From, at)
		if err != nil {
			return Snapshot{}, fmt.Errorf("update appointment %d: %w", u.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return Snapshot{}, ErrStaleSnapshot
		}
	}

	for _, a := range cs.Inserts {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, doctor_id, patient_id, scheduled_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, a.DoctorID, a.PatientID, r.toWallClock(a.ScheduledAt), a.Status, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return Snapshot{}, ErrConflict
			}
			return Snapshot{}, fmt.Errorf("insert appointment %d: %w", a.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointment_store_version SET version = version + 1 WHERE id = 1
	`); err != nil {
		return Snapshot{}, fmt.Errorf("bump store version: %w", err)
	}

	snap, err := r.readSnapshot(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("commit apply: %w", err)
	}

	r.publish(snap)
	return snap, nil
}

func (r *PgStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('appointment_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next appointment id: %w", err)
	}
	return id, nil
}

// Subscribe only sees commits made through this PgStore instance.
func (r *PgStore) Subscribe(fn func(Snapshot)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.subSeq++
	id := r.subSeq
	r.subs[id] = fn

	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *PgStore) publish(snap Snapshot) {
	r.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// InsertEvent makes PgStore an EventSink backed by the event_logs table.
func (r *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

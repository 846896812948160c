package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned by Get when no record matches the id.
	ErrNotFound = errors.New("store: task not found")
	// ErrCASMismatch is returned by Update when expectedState no longer
	// matches -- another writer already won the transition.
	ErrCASMismatch = errors.New("store: compare-and-swap mismatch")
)

// Append inserts a new task record, assigning it a monotonic id and
// computing its initial state from depIDs: WAITING if any dependency
// has not yet SUCCEEDED, PENDING otherwise. Mirrors append(record) -> id
// from spec.md section 4.1. If rec.State is already set to a terminal
// state (the Result Cache hit path of §4.3, which inserts straight
// into SUCCEEDED with a result_ref and runs no worker), that state is
// used verbatim instead of being computed from depIDs.
func (s *Store) Append(ctx context.Context, rec Record, depIDs []string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	state := rec.State
	if state == "" {
		state, err = initialState(ctx, tx, depIDs)
		if err != nil {
			return "", err
		}
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
INSERT INTO tasks (app_name, kind, code_blob, args_blob, kwargs_blob, fingerprint, state, errno, out, err, result_ref, jobid, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AppName, rec.Kind, rec.CodeBlob, rec.ArgsBlob, rec.KwargsBlob, rec.Fingerprint, state,
		rec.Errno, rec.Out, rec.Err, nullableString(rec.ResultRef), rec.JobID, now)
	if err != nil {
		return "", fmt.Errorf("store: append: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	id := strconv.FormatInt(id64, 10)

	for ord, dep := range depIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO requires (id, require, ord) VALUES (?, ?, ?)`, id64, dep, ord); err != nil {
			return "", fmt.Errorf("store: append requires: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func initialState(ctx context.Context, tx *sql.Tx, depIDs []string) (State, error) {
	if len(depIDs) == 0 {
		return StatePending, nil
	}
	for _, dep := range depIDs {
		var state State
		if err := tx.QueryRowContext(ctx, `SELECT state FROM tasks WHERE id = ?`, dep).Scan(&state); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", fmt.Errorf("store: dependency %s not found", dep)
			}
			return "", err
		}
		if state != StateSucceeded {
			return StateWaiting, nil
		}
	}
	return StatePending, nil
}

// Get returns a snapshot of one task record.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, app_name, kind, code_blob, args_blob, kwargs_blob, fingerprint, state, errno, out, err,
       result_ref, jobid, lease_until, created_at, started_at, finished_at
FROM tasks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.DepIDs, err = s.depIDs(ctx, id)
	return rec, err
}

func (s *Store) depIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT require FROM requires WHERE id = ? ORDER BY ord ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var resultRef sql.NullString
	var leaseUntil, started, finished sql.NullTime
	err := row.Scan(&rec.ID, &rec.AppName, &rec.Kind, &rec.CodeBlob, &rec.ArgsBlob, &rec.KwargsBlob,
		&rec.Fingerprint, &rec.State, &rec.Errno, &rec.Out, &rec.Err, &resultRef, &rec.JobID,
		&leaseUntil, &rec.Created, &started, &finished)
	if err != nil {
		return Record{}, err
	}
	if resultRef.Valid {
		rec.ResultRef = resultRef.String
	}
	if leaseUntil.Valid {
		t := leaseUntil.Time
		rec.LeaseUntil = &t
	}
	if started.Valid {
		t := started.Time
		rec.Started = &t
	}
	if finished.Valid {
		t := finished.Time
		rec.Finished = &t
	}
	return rec, nil
}

// Update performs a compare-and-swap state transition: it only applies
// when the record's current state is still expected. Returns
// ErrCASMismatch when another writer already moved the record.
func (s *Store) Update(ctx context.Context, id string, expected, next State, fn func(*Record)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT id, app_name, kind, code_blob, args_blob, kwargs_blob, fingerprint, state, errno, out, err,
       result_ref, jobid, lease_until, created_at, started_at, finished_at
FROM tasks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if rec.State != expected {
		return ErrCASMismatch
	}
	rec.State = next
	if fn != nil {
		fn(&rec)
	}
	now := time.Now().UTC()
	var started, finished any = nullableTime(rec.Started), nullableTime(rec.Finished)
	if next == StateRunning && rec.Started == nil {
		rec.Started = &now
		started = now
	}
	if next.Terminal() {
		rec.Finished = &now
		finished = now
	}
	res, err := tx.ExecContext(ctx, `
UPDATE tasks SET state=?, errno=?, out=?, err=?, result_ref=?, jobid=?, lease_until=?, started_at=?, finished_at=?
WHERE id=? AND state=?`,
		rec.State, rec.Errno, rec.Out, rec.Err, nullableString(rec.ResultRef), rec.JobID,
		nullableTime(rec.LeaseUntil), started, finished, id, expected)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrCASMismatch
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if next == StateSucceeded || next == StateFailed {
		return s.promoteWaitingOn(ctx, id)
	}
	return nil
}

// promoteWaitingOn moves every task that was WAITING on id into PENDING
// once all of its dependencies have SUCCEEDED. Mirrors
// Queue._update_waiting_tasks in the original implementation.
func (s *Store) promoteWaitingOn(ctx context.Context, id string) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT t.id FROM tasks t JOIN requires r ON r.id = t.id
WHERE r.require = ? AND t.state = ?`, id, StateWaiting)
	if err != nil {
		return err
	}
	var waiters []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			rows.Close()
			return err
		}
		waiters = append(waiters, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, w := range waiters {
		deps, err := s.depIDs(ctx, w)
		if err != nil {
			return err
		}
		allDone := true
		for _, dep := range deps {
			var state State
			if err := s.db.QueryRowContext(ctx, `SELECT state FROM tasks WHERE id = ?`, dep).Scan(&state); err != nil {
				return err
			}
			if state != StateSucceeded {
				allDone = false
				break
			}
		}
		if allDone {
			if err := s.Update(ctx, w, StateWaiting, StatePending, nil); err != nil && !errors.Is(err, ErrCASMismatch) {
				return err
			}
		}
	}
	return nil
}

// NextPending atomically claims the oldest PENDING record, moving it to
// RUNNING, and returns it. Returns ErrNotFound itself (not wrapped)
// when there is nothing ready to claim.
func (s *Store) NextPending(ctx context.Context, leaseFor time.Duration) (Record, error) {
	var rec Record
	err := s.retrier.do(ctx, func() error {
		var err error
		rec, err = s.nextPendingOnce(ctx, leaseFor)
		return err
	})
	return rec, err
}

// nextPendingOnce is one attempt at claiming the oldest PENDING record.
// Under contention from several managers sharing a queue file, the
// transaction can fail with a locked-database error that the caller
// retries with backoff rather than surfacing to the scheduler.
func (s *Store) nextPendingOnce(ctx context.Context, leaseFor time.Duration) (Record, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT id, app_name, kind, code_blob, args_blob, kwargs_blob, fingerprint, state, errno, out, err,
       result_ref, jobid, lease_until, created_at, started_at, finished_at
FROM tasks WHERE state = ? ORDER BY id ASC LIMIT 1`, StatePending)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	lease := now.Add(leaseFor)
	res, err := tx.ExecContext(ctx, `
UPDATE tasks SET state=?, started_at=?, lease_until=? WHERE id=? AND state=?`,
		StateRunning, now, lease, rec.ID, StatePending)
	if err != nil {
		return Record{}, err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return Record{}, ErrCASMismatch
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	rec.State = StateRunning
	rec.Started = &now
	rec.LeaseUntil = &lease
	rec.DepIDs, err = s.depIDs(ctx, rec.ID)
	return rec, err
}

// List returns records matching filter, ascending by id (FIFO order).
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	query := `
SELECT id, app_name, kind, code_blob, args_blob, kwargs_blob, fingerprint, state, errno, out, err,
       result_ref, jobid, lease_until, created_at, started_at, finished_at
FROM tasks WHERE 1=1`
	var args []any
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.AppName != "" {
		query += ` AND app_name = ?`
		args = append(args, filter.AppName)
	}
	query += ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].DepIDs, err = s.depIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Retry moves every record in fromState back to PENDING, clearing its
// terminal fields and result_ref. Satisfies the `retry --state S`
// CLI surface of spec.md section 6.
func (s *Store) Retry(ctx context.Context, fromState State) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE state = ?`, fromState)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		err := s.Update(ctx, id, fromState, StatePending, func(r *Record) {
			r.Errno, r.Err, r.Out, r.ResultRef, r.JobID = 0, "", "", "", ""
			r.Started, r.Finished, r.LeaseUntil = nil, nil, nil
		})
		if err == nil {
			n++
		} else if !errors.Is(err, ErrCASMismatch) {
			return n, err
		}
	}
	return n, nil
}

// Summary counts records by state, backing the `queues` CLI command.
func (s *Store) Summary(ctx context.Context) (map[State]int, error) {
	out := map[State]int{}
	for _, st := range AllStates {
		out[st] = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM tasks GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st State
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// SweepExpiredLeases demotes RUNNING records whose worker lease has
// expired to UNKNOWN, per the liveness-sweep failure semantics of
// spec.md section 4.1.
func (s *Store) SweepExpiredLeases(ctx context.Context) (int, error) {
	// lease_until was bound as a time.Time by the driver, so the current
	// time is bound the same way: both sides then share one text format
	// and compare correctly as strings.
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET state=?, finished_at=?
WHERE state=? AND lease_until IS NOT NULL AND lease_until <= ?`, StateUnknown, now, StateRunning, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

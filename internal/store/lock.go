package store

import (
	"context"
	"fmt"
	"time"
)

// ErrManagerLocked is returned by AcquireManagerLock when another live
// manager already owns the queue, per spec.md section 4.8: "It refuses
// to start if another manager holds the store's manager lock."
var ErrManagerLocked = fmt.Errorf("store: another manager already holds this queue's lock")

// staleAfter is how long a manager may go without a heartbeat before
// its lock is considered abandoned and reclaimable.
const staleAfter = 30 * time.Second

// AcquireManagerLock claims the single manager_lock row for owner/pid,
// reclaiming it first if the previous holder's heartbeat is stale.
func (s *Store) AcquireManagerLock(ctx context.Context, owner string, pid int) error {
	return s.retrier.do(ctx, func() error {
		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
INSERT INTO manager_lock (id, owner, pid, acquired_at, heartbeat_at) VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET owner=excluded.owner, pid=excluded.pid, acquired_at=excluded.acquired_at, heartbeat_at=excluded.heartbeat_at
WHERE manager_lock.heartbeat_at <= ?`, owner, pid, now, now, now.Add(-staleAfter))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrManagerLocked
		}
		return nil
	})
}

// Heartbeat refreshes the manager lock so peers don't reclaim it.
func (s *Store) Heartbeat(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE manager_lock SET heartbeat_at = ? WHERE owner = ?`, time.Now().UTC(), owner)
	return err
}

// ReleaseManagerLock drops the lock row, letting another manager claim it immediately.
func (s *Store) ReleaseManagerLock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM manager_lock WHERE owner = ?`, owner)
	return err
}

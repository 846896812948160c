package store

import "context"

// QueueState returns the queue's ACTIVE/PAUSED state, per spec.md
// section 3 -- readable by all peers without locking.
func (s *Store) QueueState(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'state'`).Scan(&value)
	return value, err
}

// SetQueueState sets the queue to ACTIVE or PAUSED.
func (s *Store) SetQueueState(ctx context.Context, state string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES ('state', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, state)
	return err
}

// Delete removes every table's contents and closes the store. Callers
// are expected to also remove the backing file.
func (s *Store) Delete(ctx context.Context) error {
	for _, table := range []string{"requires", "tasks", "manager_lock", "config", "metadata"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return s.Close()
}

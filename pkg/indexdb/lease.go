package indexdb

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Lease is a session-level advisory lock granting the single-writer right to
// advance the tip. It is held on a dedicated connection until released.
type Lease struct {
	conn bun.Conn
	key  int64
}

// AcquireLease takes the advisory lock for key without waiting.
func (s *Store) AcquireLease(ctx context.Context, key int64) (*Lease, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lease connection: %w", err)
	}

	var ok bool
	if err := conn.NewSelect().ColumnExpr("pg_try_advisory_lock(?)", key).Scan(ctx, &ok); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire lease %d: %w", key, err)
	}
	if !ok {
		_ = conn.Close()
		return nil, ErrLeaseHeld
	}
	return &Lease{conn: conn, key: key}, nil
}

// Release unlocks the lease and returns its connection to the pool.
func (l *Lease) Release(ctx context.Context) error {
	var ok bool
	err := l.conn.NewSelect().ColumnExpr("pg_advisory_unlock(?)", l.key).Scan(ctx, &ok)
	closeErr := l.conn.Close()
	if err != nil {
		return fmt.Errorf("failed to release lease %d: %w", l.key, err)
	}
	return closeErr
}

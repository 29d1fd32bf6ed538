package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// syncLockKey identifies the sync run in pg_advisory_lock's key space.
const syncLockKey int64 = 0x6775696465 // "guide"

// AdvisoryLocker serializes sync runs across processes sharing a database.
type AdvisoryLocker struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewAdvisoryLocker(db *sqlx.DB, logger *slog.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, logger: logger}
}

// TryLock takes the session-level advisory lock on a dedicated connection.
// The connection is held until release is called.
func (l *AdvisoryLocker) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("get connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock($1)`, syncLockKey).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, syncLockKey); err != nil {
			l.logger.Error("failed to release sync lock", "error", err)
		}
		_ = conn.Close()
	}
	return release, true, nil
}

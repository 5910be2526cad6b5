package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner opens a READ COMMITTED transaction, places it in the context and
// commits when fn succeeds. Stores pick the transaction up via tx.Conn.
type TxRunner struct {
	db          *sql.DB
	timeout     time.Duration
	lockTimeout time.Duration
}

// NewTxRunner builds a transaction runner. lockTimeout bounds row lock waits
// so contended locks surface as retryable errors instead of hanging.
func NewTxRunner(db *sql.DB, timeout, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{db: db, timeout: timeout, lockTimeout: lockTimeout}
}

func (t *TxRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, nested := tx.From(ctx); nested {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", t.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return classify(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

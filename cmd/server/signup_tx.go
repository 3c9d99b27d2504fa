package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"onboard/internal/signup/service"
	dErrors "onboard/pkg/domain-errors"
	txcontext "onboard/pkg/platform/tx"
)

// signupPostgresTx runs provisioning in one database transaction. The stores pick
// the transaction up from the context they are handed.
type signupPostgresTx struct {
	db         *sql.DB
	primaries  service.PrimaryStore
	auths      service.AuthAccountStore
	timeout    time.Duration
	savepoints atomic.Uint64
}

func newSignupPostgresTx(db *sql.DB, primaries service.PrimaryStore, auths service.AuthAccountStore, timeout time.Duration) *signupPostgresTx {
	if timeout <= 0 {
		timeout = service.DefaultTxTimeout
	}
	return &signupPostgresTx{db: db, primaries: primaries, auths: auths, timeout: timeout}
}

func (t *signupPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores service.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, tx)
	stores := service.TxStores{
		Primary:   t.primaries,
		Auth:      t.auths,
		Savepoint: t.savepoint,
	}
	if err := fn(txCtx, stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}

func (t *signupPostgresTx) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return fn(ctx)
	}
	name := fmt.Sprintf("signup_sp_%d", t.savepoints.Add(1))
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w (after %w)", rbErr, err)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

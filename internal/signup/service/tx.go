package service

import (
	"context"
	"sync"
	"time"

	"onboard/internal/signup/store/authaccount"
	"onboard/internal/signup/store/primary"
	dErrors "onboard/pkg/domain-errors"
)

// TxStores is the view of the stores handed to a transaction callback.
type TxStores struct {
	Primary PrimaryStore
	Auth    AuthAccountStore
	// Savepoint runs fn so that a failure undoes only fn's writes and leaves the
	// enclosing transaction usable.
	Savepoint func(ctx context.Context, fn func(ctx context.Context) error) error
}

// StoreTx provides the atomic boundary for provisioning. Implementations may
// wrap a database transaction or, in memory, a coarse lock with rollback.
// The callback must use the context it receives.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

// DefaultTxTimeout bounds a provisioning transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// InMemoryTx serializes transactions behind one mutex and restores both stores
// from a snapshot when the callback fails.
type InMemoryTx struct {
	mu      sync.Mutex
	primary *primary.InMemory
	auth    *authaccount.InMemory
	timeout time.Duration
}

func NewInMemoryTx(primaryStore *primary.InMemory, authStore *authaccount.InMemory) *InMemoryTx {
	return &InMemoryTx{primary: primaryStore, auth: authStore, timeout: DefaultTxTimeout}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	primarySnap := t.primary.Snapshot()
	authSnap := t.auth.Snapshot()
	stores := TxStores{
		Primary: t.primary,
		Auth:    t.auth,
		Savepoint: func(ctx context.Context, fn func(ctx context.Context) error) error {
			p, a := t.primary.Snapshot(), t.auth.Snapshot()
			if err := fn(ctx); err != nil {
				t.primary.Restore(p)
				t.auth.Restore(a)
				return err
			}
			return nil
		},
	}
	if err := fn(ctx, stores); err != nil {
		t.primary.Restore(primarySnap)
		t.auth.Restore(authSnap)
		return err
	}
	return nil
}

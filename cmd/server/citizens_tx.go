package main

import (
	"context"
	"database/sql"
	"time"

	"census/internal/citizens/service"
	"census/internal/citizens/store"
	dErrors "census/pkg/domain-errors"
)

const defaultCitizensTxTimeout = 5 * time.Second

type citizensPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newCitizensPostgresTx(db *sql.DB, timeout time.Duration) *citizensPostgresTx {
	return &citizensPostgresTx{db: db, timeout: timeout}
}

func (t *citizensPostgresTx) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultCitizensTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(store.NewPostgresTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// citizensMemoryTx runs callbacks against a copy of the in-memory state that
// replaces the live state only when the callback succeeds.
type citizensMemoryTx struct {
	mem *store.Memory
}

func newCitizensMemoryTx(mem *store.Memory) *citizensMemoryTx {
	return &citizensMemoryTx{mem: mem}
}

func (t *citizensMemoryTx) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return t.mem.Update(ctx, func(tx *store.MemoryTx) error {
		return fn(tx)
	})
}

var (
	_ service.StoreTx = (*citizensPostgresTx)(nil)
	_ service.StoreTx = (*citizensMemoryTx)(nil)
)

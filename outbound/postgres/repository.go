// Package postgres holds the hand-written repositories for orders, cards,
// users and daily stats. Every compound invariant (FIFO allocation,
// at-most-once charge, counter increments) is carried by a single atomic
// conditional statement or a short transaction here, never by
// read-then-write in the callers.
package postgres

import (
	"context"
	"log/slog"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/common/contract"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	Db contract.DbConn
}

func New(db contract.DbConn) *Repository {
	return &Repository{Db: db}
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		slog.ErrorContext(ctx, "failed to rollback transaction", slog.Any(constant.LogFieldErr, err))
	}
}

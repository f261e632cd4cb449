package postgres

import (
	"context"
	"errors"
	"vcc-fulfillment/common/errs"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) FindUserBalance(ctx context.Context, userId int64) (int64, error) {
	var balance int64

	err := r.Db.QueryRow(ctx, `SELECT balance_cents FROM users WHERE id = $1;`, userId).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errs.ErrUserNotFound
	}

	return balance, err
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/model"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `order_number, user_id, amount_cents, payment_method, status, channel_id, charged, claimed_by, card_id, card_data, completed_at, created_at, updated_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var out model.Order
	var status string
	var channelId, claimedBy, cardId, cardData sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&out.OrderNumber, &out.UserId, &out.AmountCents, &out.PaymentMethod, &status,
		&channelId, &out.Charged, &claimedBy, &cardId, &cardData, &completedAt, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}

	out.Status = model.OrderStatus(status)
	out.ChannelId = channelId.String
	out.ClaimedBy = claimedBy.String
	out.CardId = cardId.String
	out.CardData = cardData.String
	if completedAt.Valid {
		t := completedAt.Time
		out.CompletedAt = &t
	}

	return out, nil
}

// InsertVerifiedOrder records an order the payment pipeline has verified.
// Redelivered events are absorbed by the conflict clause.
func (r *Repository) InsertVerifiedOrder(ctx context.Context, msg model.PaymentVerifiedEventMessage) (bool, error) {
	cmd, err := r.Db.Exec(ctx, `
INSERT INTO orders (order_number, user_id, amount_cents, payment_method, status)
VALUES ($1, $2, $3, $4, 'payment_verified')
ON CONFLICT (order_number) DO NOTHING;`,
		msg.OrderNumber, msg.UserId, msg.AmountCents, msg.PaymentMethod)
	if err != nil {
		return false, err
	}

	return cmd.RowsAffected() > 0, nil
}

func (r *Repository) FindOrderByNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	row := r.Db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1;`, orderNumber)

	out, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, errs.ErrOrderNotFound
	}

	return out, err
}

// FindOrdersAwaitingTicket returns at most limit verified orders that have no
// ticket channel yet, oldest first.
func (r *Repository) FindOrdersAwaitingTicket(ctx context.Context, limit int32) ([]model.Order, error) {
	rows, err := r.Db.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE status = 'payment_verified' AND channel_id IS NULL
ORDER BY created_at, order_number
LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, order)
	}

	return items, rows.Err()
}

// MarkOrderQueued stamps the ticket channel and moves the order to queued.
// Conditional on the pre-ticket state so a concurrent poller cannot attach a
// second channel.
func (r *Repository) MarkOrderQueued(ctx context.Context, orderNumber, channelId string) error {
	cmd, err := r.Db.Exec(ctx, `
UPDATE orders
SET channel_id = $2, status = 'queued', updated_at = now()
WHERE order_number = $1 AND status = 'payment_verified' AND channel_id IS NULL;`,
		orderNumber, channelId)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return errs.ErrOrderNotFound
	}

	return nil
}

// MarkOrderProcessing is a pass-through for the delivery automation. A false
// return means the order was not in queued state, which the caller tolerates.
func (r *Repository) MarkOrderProcessing(ctx context.Context, orderNumber string) (bool, error) {
	cmd, err := r.Db.Exec(ctx, `
UPDATE orders SET status = 'processing', updated_at = now()
WHERE order_number = $1 AND status = 'queued';`, orderNumber)
	if err != nil {
		return false, err
	}

	return cmd.RowsAffected() > 0, nil
}

func (r *Repository) ClaimOrder(ctx context.Context, orderNumber, claimedBy string) error {
	cmd, err := r.Db.Exec(ctx, `
UPDATE orders SET claimed_by = $2, updated_at = now()
WHERE order_number = $1;`, orderNumber, claimedBy)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return errs.ErrOrderNotFound
	}

	return nil
}

// ResolveSuccess performs the charged-success transition in one transaction:
// charged compare-and-set, conditional balance debit, daily success counter.
// Two concurrent calls cannot both pass the charged guard; a failed debit
// rolls everything back.
func (r *Repository) ResolveSuccess(ctx context.Context, orderNumber string, now time.Time) (model.Order, error) {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("begin: %w", err)
	}
	defer rollback(ctx, tx)

	row := tx.QueryRow(ctx, `
UPDATE orders
SET charged = true, status = 'delivered', completed_at = $2, updated_at = $2
WHERE order_number = $1 AND charged = false AND status NOT IN ('delivered', 'failed') AND card_id IS NOT NULL
RETURNING `+orderColumns+`;`, orderNumber, now)

	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, r.explainResolveConflict(ctx, orderNumber)
	}
	if err != nil {
		return model.Order{}, err
	}

	var balance int64
	err = tx.QueryRow(ctx, `
UPDATE users SET balance_cents = balance_cents - $2
WHERE id = $1 AND balance_cents >= $2
RETURNING balance_cents;`, order.UserId, order.AmountCents).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, r.explainDebitConflict(ctx, order.UserId, order.AmountCents)
	}
	if err != nil {
		return model.Order{}, err
	}

	if _, err := tx.Exec(ctx, queryIncrementDailySuccess, dayKey(now)); err != nil {
		return model.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, fmt.Errorf("commit: %w", err)
	}

	return order, nil
}

// ResolveFailure marks the no-charge terminal state and bumps the failure
// counter. Balances are never touched on this path.
func (r *Repository) ResolveFailure(ctx context.Context, orderNumber string, now time.Time) (model.Order, error) {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("begin: %w", err)
	}
	defer rollback(ctx, tx)

	row := tx.QueryRow(ctx, `
UPDATE orders
SET status = 'failed', completed_at = $2, updated_at = $2
WHERE order_number = $1 AND charged = false AND status NOT IN ('delivered', 'failed')
RETURNING `+orderColumns+`;`, orderNumber, now)

	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, r.explainResolveConflict(ctx, orderNumber)
	}
	if err != nil {
		return model.Order{}, err
	}

	if _, err := tx.Exec(ctx, queryIncrementDailyFailure, dayKey(now)); err != nil {
		return model.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, fmt.Errorf("commit: %w", err)
	}

	return order, nil
}

// explainResolveConflict turns a zero-row resolve update into the precise
// domain error the staff needs to see.
func (r *Repository) explainResolveConflict(ctx context.Context, orderNumber string) error {
	var charged bool
	var status string
	var cardId sql.NullString

	err := r.Db.QueryRow(ctx, `SELECT charged, status, card_id FROM orders WHERE order_number = $1;`, orderNumber).
		Scan(&charged, &status, &cardId)
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	if charged || model.OrderStatus(status).Terminal() {
		return errs.ErrAlreadyResolved
	}

	if !cardId.Valid {
		return errs.ErrNoCardAssigned
	}

	return errs.ErrAlreadyResolved
}

func (r *Repository) explainDebitConflict(ctx context.Context, userId, requiredCents int64) error {
	balance, err := r.FindUserBalance(ctx, userId)
	if err != nil {
		return err
	}

	return &errs.InsufficientFundsError{BalanceCents: balance, RequiredCents: requiredCents}
}

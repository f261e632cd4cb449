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

const cardColumns = `id, raw_line, status, used_at, used_by_order, created_at`

func scanCard(row pgx.Row) (model.Card, error) {
	var out model.Card
	var status string
	var usedAt sql.NullTime
	var usedByOrder sql.NullString

	err := row.Scan(&out.Id, &out.RawLine, &status, &usedAt, &usedByOrder, &out.CreatedAt)
	if err != nil {
		return model.Card{}, err
	}

	out.Status = model.CardStatus(status)
	out.UsedByOrder = usedByOrder.String
	if usedAt.Valid {
		t := usedAt.Time
		out.UsedAt = &t
	}

	return out, nil
}

// InsertCard admits one card. The conflict clause is the uniqueness guard:
// zero rows affected means the fingerprint is already pooled.
func (r *Repository) InsertCard(ctx context.Context, card model.Card) error {
	cmd, err := r.Db.Exec(ctx, `
INSERT INTO cards (id, raw_line, status)
VALUES ($1, $2, 'unused')
ON CONFLICT (id) DO NOTHING;`, card.Id, card.RawLine)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return errs.ErrDuplicateCard
	}

	return nil
}

// InsertCardBatch admits the whole validated batch or nothing. Uniqueness is
// re-verified at write time: a conflict from a concurrent admission rolls the
// transaction back.
func (r *Repository) InsertCardBatch(ctx context.Context, cards []model.Card) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer rollback(ctx, tx)

	for _, card := range cards {
		cmd, err := tx.Exec(ctx, `
INSERT INTO cards (id, raw_line, status)
VALUES ($1, $2, 'unused')
ON CONFLICT (id) DO NOTHING;`, card.Id, card.RawLine)
		if err != nil {
			return err
		}

		if cmd.RowsAffected() == 0 {
			return errs.ErrDuplicateCard
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// AssignCardToOrder allocates the oldest unused card and stamps it onto the
// order. The allocation is one conditional update with FOR UPDATE SKIP LOCKED,
// so concurrent assigners never receive the same card; losing the order stamp
// rolls the allocation back and the card stays unused.
func (r *Repository) AssignCardToOrder(ctx context.Context, orderNumber string, now time.Time) (model.Card, error) {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return model.Card{}, fmt.Errorf("begin: %w", err)
	}
	defer rollback(ctx, tx)

	row := tx.QueryRow(ctx, `
UPDATE cards SET status = 'used', used_at = $2, used_by_order = $1
WHERE id = (
	SELECT id FROM cards
	WHERE status = 'unused'
	ORDER BY created_at, id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING `+cardColumns+`;`, orderNumber, now)

	card, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Card{}, errs.ErrPoolExhausted
	}
	if err != nil {
		return model.Card{}, err
	}

	cmd, err := tx.Exec(ctx, `
UPDATE orders SET card_id = $2, card_data = $3, updated_at = $4
WHERE order_number = $1 AND card_id IS NULL;`, orderNumber, card.Id, card.RawLine, now)
	if err != nil {
		return model.Card{}, err
	}

	if cmd.RowsAffected() == 0 {
		var exists bool
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1) AS "exists";`, orderNumber).Scan(&exists)
		if err != nil {
			return model.Card{}, err
		}

		if !exists {
			return model.Card{}, errs.ErrOrderNotFound
		}

		return model.Card{}, errs.ErrCardAssigned
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Card{}, fmt.Errorf("commit: %w", err)
	}

	return card, nil
}

func (r *Repository) CountCards(ctx context.Context) (model.InventoryStats, error) {
	var out model.InventoryStats

	err := r.Db.QueryRow(ctx, `
SELECT
	COUNT(*) FILTER (WHERE status = 'unused') AS unused,
	COUNT(*) FILTER (WHERE status = 'used') AS used,
	COUNT(*) AS total
FROM cards;`).Scan(&out.Unused, &out.Used, &out.Total)

	return out, err
}

// FilterExistingCardIds returns which of the given fingerprints are already
// pooled. Used by the batch validator for inter-batch duplicate detection.
func (r *Repository) FilterExistingCardIds(ctx context.Context, ids []string) (map[string]struct{}, error) {
	rows, err := r.Db.Query(ctx, `SELECT id FROM cards WHERE id = ANY($1);`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}

	return existing, rows.Err()
}

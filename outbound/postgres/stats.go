package postgres

import (
	"context"
	"errors"
	"time"
	"vcc-fulfillment/model"

	"github.com/jackc/pgx/v5"
)

// Counter increments are single upsert statements so concurrent terminal
// resolutions on the same day never lose updates.
const queryIncrementDailySuccess = `
INSERT INTO daily_stats (day, success_count, failure_count)
VALUES ($1, 1, 0)
ON CONFLICT (day) DO UPDATE SET success_count = daily_stats.success_count + 1;`

const queryIncrementDailyFailure = `
INSERT INTO daily_stats (day, success_count, failure_count)
VALUES ($1, 0, 1)
ON CONFLICT (day) DO UPDATE SET failure_count = daily_stats.failure_count + 1;`

// dayKey resolves the calendar day in UTC regardless of server timezone.
func dayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// FindDailyStats returns the record for the given moment's UTC day. A day
// with no terminal orders yet reads as zero counts.
func (r *Repository) FindDailyStats(ctx context.Context, now time.Time) (model.DailyStats, error) {
	day := dayKey(now)

	var out model.DailyStats
	err := r.Db.QueryRow(ctx, `SELECT day, success_count, failure_count FROM daily_stats WHERE day = $1;`, day).
		Scan(&out.Day, &out.SuccessCount, &out.FailureCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DailyStats{Day: day}, nil
	}

	return out, err
}

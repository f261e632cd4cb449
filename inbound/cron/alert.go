package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"vcc-fulfillment/common"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/common/otel"
	"vcc-fulfillment/outbound/chatgw"
	"vcc-fulfillment/outbound/postgres"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// AlertCron samples the card pool and raises at most one low-inventory alert
// per cooldown window. The cooldown timestamp is process-local: with several
// replicas each keeps its own window, which is an accepted relaxation.
type AlertCron struct {
	Cfg   *viper.Viper
	Repo  *postgres.Repository
	Cache *redis.Client
	Chat  chatgw.Gateway

	TimeNow func() time.Time

	mu        sync.Mutex
	lastAlert time.Time
}

func (in *AlertCron) Start(ctx context.Context) {
	ticker := time.NewTicker(in.Cfg.GetDuration("alert.interval"))
	defer ticker.Stop()

	slog.Info("alert cron started")

	for {
		select {
		case <-ticker.C:
			if _, _, err := in.Check(ctx, false); err != nil {
				slog.ErrorContext(ctx, "inventory check failed", slog.Any(constant.LogFieldErr, err))
			}
		case <-ctx.Done():
			slog.Info("alert cron stopped")
			return
		}
	}
}

// Check evaluates the pool once. force skips the cooldown for this one
// evaluation; the timestamp moves only when an alert is actually sent, so a
// forced check against a healthy pool leaves the cooldown untouched.
func (in *AlertCron) Check(ctx context.Context, force bool) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("alert.timeout"))
	defer cancel()

	ctx, span := otel.Tracer.Start(ctx, "AlertCron.Check")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	stats, err := in.Repo.CountCards(ctx)
	if err != nil {
		common.UtilSpanError(span, err)
		return 0, false, err
	}

	if err := in.Cache.Set(ctx, constant.UnusedCardGaugeKey, stats.Unused, 0).Err(); err != nil {
		slog.WarnContext(ctx, "failed to refresh unused card gauge", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	threshold := in.Cfg.GetInt64("alert.threshold")
	if stats.Unused > threshold {
		slog.DebugContext(ctx, "inventory healthy", traceIdAttr, slog.Int64("unused", stats.Unused))
		return stats.Unused, false, nil
	}

	timeNow := in.TimeNow
	if timeNow == nil {
		timeNow = time.Now
	}
	now := timeNow()

	in.mu.Lock()
	cooldownActive := now.Sub(in.lastAlert) < in.Cfg.GetDuration("alert.cooldown")
	in.mu.Unlock()

	if cooldownActive && !force {
		slog.DebugContext(ctx, "alert suppressed by cooldown", traceIdAttr, slog.Int64("unused", stats.Unused))
		return stats.Unused, false, nil
	}

	content := fmt.Sprintf(constant.LowInventoryAlertTemplate, stats.Unused, threshold)
	alertChannel := in.Cfg.GetString("alert.channel_id")

	if err := in.Chat.SendMessage(ctx, alertChannel, content, nil); err != nil {
		// Alert delivery is non-critical: log and try again next cycle.
		slog.WarnContext(ctx, "failed to send low inventory alert", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return stats.Unused, false, nil
	}

	in.mu.Lock()
	in.lastAlert = now
	in.mu.Unlock()

	slog.InfoContext(ctx, "low inventory alert sent", traceIdAttr, slog.Int64("unused", stats.Unused))

	return stats.Unused, true, nil
}

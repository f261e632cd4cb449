package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"vcc-fulfillment/common"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/common/otel"
	"vcc-fulfillment/model"
	"vcc-fulfillment/outbound/chatgw"
	"vcc-fulfillment/outbound/postgres"

	"github.com/spf13/viper"
	"golang.org/x/text/message"
)

// TicketCron polls for payment-verified orders without a ticket and opens a
// staff channel for each. One failing order never blocks the rest of the
// batch; untouched orders are retried on the next poll.
type TicketCron struct {
	Cfg               *viper.Viper
	Repo              *postgres.Repository
	Chat              chatgw.Gateway
	CurrencyFormatter *message.Printer

	TimeNow func() time.Time
}

func (in *TicketCron) Start(ctx context.Context) {
	ticker := time.NewTicker(in.Cfg.GetDuration("ticket.poll.interval"))
	defer ticker.Stop()

	in.CreateTickets(ctx)

	slog.Info("ticket cron started")

	for {
		select {
		case <-ticker.C:
			in.CreateTickets(ctx)
		case <-ctx.Done():
			slog.Info("ticket cron stopped")
			return
		}
	}
}

func (in *TicketCron) CreateTickets(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("ticket.poll.timeout"))
	defer cancel()

	ctx, span := otel.Tracer.Start(ctx, "TicketCron.CreateTickets")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	orders, err := in.Repo.FindOrdersAwaitingTicket(ctx, in.Cfg.GetInt32("ticket.poll.batch_size"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to find orders awaiting ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return
	}

	if len(orders) == 0 {
		slog.DebugContext(ctx, "no orders awaiting ticket", traceIdAttr)
		return
	}

	for _, order := range orders {
		in.openTicket(ctx, order)
	}
}

func (in *TicketCron) openTicket(ctx context.Context, order model.Order) {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, order.OrderNumber)

	timeNow := in.TimeNow
	if timeNow == nil {
		timeNow = time.Now
	}

	_, err := in.Repo.AssignCardToOrder(ctx, order.OrderNumber, timeNow())
	if err != nil && !errors.Is(err, errs.ErrPoolExhausted) && !errors.Is(err, errs.ErrCardAssigned) {
		slog.ErrorContext(ctx, "failed to assign card for ticket", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	cardLine := constant.TicketNoCardLine
	if err == nil || errors.Is(err, errs.ErrCardAssigned) {
		cardLine = constant.TicketCardAssignedLine
	} else {
		slog.WarnContext(ctx, "card pool exhausted, ticket opens without card", orderAttr, traceIdAttr)
	}

	content := fmt.Sprintf(constant.TicketOpeningTemplate,
		order.OrderNumber,
		order.OrderNumber,
		formatAmount(in.CurrencyFormatter, order.AmountCents),
		order.PaymentMethod,
		cardLine,
	)

	channelId, err := in.Chat.CreateTicket(ctx, order.OrderNumber, content)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create ticket channel", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	if err := in.Repo.MarkOrderQueued(ctx, order.OrderNumber, channelId); err != nil {
		slog.ErrorContext(ctx, "failed to mark order queued", orderAttr, traceIdAttr,
			slog.String("channel_id", channelId), slog.Any(constant.LogFieldErr, err))
		return
	}

	slog.InfoContext(ctx, "ticket created", orderAttr, traceIdAttr, slog.String("channel_id", channelId))
}

func formatAmount(p *message.Printer, cents int64) string {
	return p.Sprintf("$%d.%02d", cents/100, cents%100)
}

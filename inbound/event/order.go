package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"vcc-fulfillment/common"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/common/otel"
	"vcc-fulfillment/model"
	"vcc-fulfillment/outbound/postgres"
)

type OrderEvent struct {
	Repo *postgres.Repository

	Timeout time.Duration
}

// PaymentVerifiedHandler records an order the payment pipeline has matched a
// deposit for. Malformed payloads are dropped, not redelivered forever.
func (in OrderEvent) PaymentVerifiedHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.PaymentVerifiedEventMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		slog.WarnContext(ctx, "payment verified event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	if req.OrderNumber == "" || req.UserId == 0 || req.AmountCents <= 0 {
		slog.WarnContext(ctx, "payment verified event invalid payload", slog.Any(constant.LogFieldPayload, string(msg)))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "OrderEvent.PaymentVerifiedHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, req.OrderNumber)

	inserted, err := in.Repo.InsertVerifiedOrder(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to insert verified order", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return err
	}

	if !inserted {
		slog.DebugContext(ctx, "verified order already recorded", orderAttr, traceIdAttr)
		return nil
	}

	slog.InfoContext(ctx, "verified order recorded", orderAttr, traceIdAttr)

	return nil
}

// ProcessingHandler passes the delivery automation's processing status
// through. An order not in queued state is tolerated.
func (in OrderEvent) ProcessingHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.OrderProcessingEventMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		slog.WarnContext(ctx, "processing event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "OrderEvent.ProcessingHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, req.OrderNumber)

	updated, err := in.Repo.MarkOrderProcessing(ctx, req.OrderNumber)
	if err != nil {
		slog.ErrorContext(ctx, "failed to mark order processing", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return err
	}

	if !updated {
		slog.WarnContext(ctx, "order not in queued state, processing event ignored", orderAttr, traceIdAttr)
		return nil
	}

	slog.InfoContext(ctx, "order marked processing", orderAttr, traceIdAttr)

	return nil
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"vcc-fulfillment/common"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/common/otel"
	"vcc-fulfillment/model"
	"vcc-fulfillment/outbound/chatgw"
	"vcc-fulfillment/outbound/postgres"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/text/message"
)

type TicketHttp struct {
	Repo              *postgres.Repository
	Cache             *redis.Client
	Chat              chatgw.Gateway
	Validate          *validator.Validate
	CurrencyFormatter *message.Printer

	TimeNow func() time.Time

	closeDeleteDelay time.Duration
}

func RegisterTicketHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	repo *postgres.Repository,
	cache *redis.Client,
	chat chatgw.Gateway,
	validate *validator.Validate,
	currencyFormatter *message.Printer,
) *TicketHttp {
	in := &TicketHttp{
		Repo:              repo,
		Cache:             cache,
		Chat:              chat,
		Validate:          validate,
		CurrencyFormatter: currencyFormatter,
		TimeNow:           time.Now,

		closeDeleteDelay: cfg.GetDuration("ticket.close.delete_delay"),
	}

	mux.HandleFunc("POST /api/tickets/{orderNumber}/claim", in.claim)
	mux.HandleFunc("POST /api/tickets/{orderNumber}/resolve", in.resolve)
	mux.HandleFunc("POST /api/tickets/{orderNumber}/close", in.close)
	mux.HandleFunc("POST /api/tickets/{orderNumber}/card", in.assignCard)

	return in
}

func (in TicketHttp) claim(w http.ResponseWriter, r *http.Request) {
	var req model.ClaimTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.claim")
	defer span.End()

	orderNumber := r.PathValue("orderNumber")
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, orderNumber)

	slog.InfoContext(ctx, "claim ticket receive request", orderAttr, traceIdAttr)

	if err := in.Repo.ClaimOrder(ctx, orderNumber, req.ClaimedBy); err != nil {
		slog.ErrorContext(ctx, "failed to claim order", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	order, err := in.Repo.FindOrderByNumber(ctx, orderNumber)
	if err == nil && order.ChannelId != "" {
		// Best effort presentation update, the claim itself is already recorded.
		chatErr := in.Chat.SendMessage(ctx, order.ChannelId, fmt.Sprintf("Ticket claimed by %s.", req.ClaimedBy), nil)
		if chatErr != nil {
			slog.WarnContext(ctx, "failed to announce claim", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, chatErr))
		}
	}

	writeJSONResponse(w, http.StatusOK, nil)
}

func (in TicketHttp) resolve(w http.ResponseWriter, r *http.Request) {
	var req model.ResolveOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.resolve")
	defer span.End()

	orderNumber := r.PathValue("orderNumber")
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, orderNumber)

	slog.InfoContext(ctx, "resolve ticket receive request", orderAttr, traceIdAttr, slog.Any(constant.LogFieldPayload, req))

	lockKey := fmt.Sprintf(constant.OrderResolveLock, orderNumber)
	locked, err := in.Cache.SetNX(ctx, lockKey, true, constant.OrderResolveLockDefaultTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set resolve lock", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	if !locked {
		slog.DebugContext(ctx, "resolve already in progress", orderAttr, traceIdAttr)
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusConflict, Message: "Resolve already in progress"})
		return
	}

	defer func() {
		if err := in.Cache.Del(ctx, lockKey).Err(); err != nil {
			slog.WarnContext(ctx, "failed to release resolve lock", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	var order model.Order
	switch req.Outcome {
	case model.ResolveOutcomeSuccess:
		order, err = in.Repo.ResolveSuccess(ctx, orderNumber, in.TimeNow())
	case model.ResolveOutcomeFailure:
		order, err = in.Repo.ResolveFailure(ctx, orderNumber, in.TimeNow())
	}

	if errors.Is(err, errs.ErrAlreadyResolved) {
		// Repeated resolve is a no-op, never a double charge.
		order, findErr := in.Repo.FindOrderByNumber(ctx, orderNumber)
		if findErr != nil {
			writeErrorResponse(w, findErr)
			return
		}

		slog.InfoContext(ctx, "order already resolved", orderAttr, traceIdAttr)
		writeJSONResponse(w, http.StatusOK, model.ResolveOrderResponse{
			OrderNumber:     order.OrderNumber,
			Status:          order.Status,
			Charged:         order.Charged,
			AlreadyResolved: true,
		})
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve order", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	in.announceResolution(ctx, order, req.Outcome)

	slog.InfoContext(ctx, "resolve order success", orderAttr, traceIdAttr, slog.Any(constant.LogFieldResponse, order.Status))

	writeJSONResponse(w, http.StatusOK, model.ResolveOrderResponse{
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Charged:     order.Charged,
	})
}

// announceResolution updates the ticket channel. Chat failures never undo the
// state transition that already committed.
func (in TicketHttp) announceResolution(ctx context.Context, order model.Order, outcome model.ResolveOutcome) {
	if order.ChannelId == "" {
		return
	}

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, order.OrderNumber)

	content := fmt.Sprintf("Order %s resolved as failure. No charge was made.", order.OrderNumber)
	if outcome == model.ResolveOutcomeSuccess {
		content = fmt.Sprintf("Order %s resolved as success. Charged %s.", order.OrderNumber, formatAmount(in.CurrencyFormatter, order.AmountCents))
	}

	if err := in.Chat.SendMessage(ctx, order.ChannelId, content, nil); err != nil {
		slog.WarnContext(ctx, "failed to announce resolution", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	if err := in.Chat.DisableControls(ctx, order.ChannelId); err != nil {
		slog.WarnContext(ctx, "failed to disable ticket controls", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}
}

func (in TicketHttp) close(w http.ResponseWriter, r *http.Request) {
	var req model.CloseTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.close")
	defer span.End()

	orderNumber := r.PathValue("orderNumber")
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, orderNumber)

	slog.InfoContext(ctx, "close ticket receive request", orderAttr, traceIdAttr)

	order, err := in.Repo.FindOrderByNumber(ctx, orderNumber)
	if err != nil {
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	if !order.Status.Terminal() && !req.Force {
		flagKey := fmt.Sprintf(constant.OrderForceCloseFlag, orderNumber)
		first, err := in.Cache.SetNX(ctx, flagKey, true, constant.ForceCloseConfirmTTL).Result()
		if err != nil {
			slog.ErrorContext(ctx, "failed to set force close flag", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
			common.UtilSpanError(span, err)
			writeErrorResponse(w, err)
			return
		}

		if first {
			warning := fmt.Sprintf(constant.ForceCloseWarningTemplate, orderNumber, constant.ForceCloseConfirmTTL)
			if order.ChannelId != "" {
				if chatErr := in.Chat.SendMessage(ctx, order.ChannelId, warning, nil); chatErr != nil {
					slog.WarnContext(ctx, "failed to send close warning", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, chatErr))
				}
			}

			slog.InfoContext(ctx, "close ticket needs confirmation", orderAttr, traceIdAttr)
			writeJSONResponse(w, http.StatusOK, model.CloseTicketResponse{Closed: false, Warning: warning})
			return
		}

		// Flag already pending: the repeat within the window confirms the close.
	}

	in.deleteTicketChannel(ctx, order)

	if err := in.Cache.Del(ctx, fmt.Sprintf(constant.OrderForceCloseFlag, orderNumber)).Err(); err != nil {
		slog.WarnContext(ctx, "failed to clear force close flag", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	slog.InfoContext(ctx, "close ticket success", orderAttr, traceIdAttr)

	writeJSONResponse(w, http.StatusOK, model.CloseTicketResponse{Closed: true})
}

// deleteTicketChannel is fire-and-forget: the delay lets staff read the
// closing message, and a failed deletion is only logged.
func (in TicketHttp) deleteTicketChannel(ctx context.Context, order model.Order) {
	if order.ChannelId == "" {
		return
	}

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, order.OrderNumber)

	closing := fmt.Sprintf(constant.TicketClosingTemplate, order.OrderNumber)
	if err := in.Chat.SendMessage(ctx, order.ChannelId, closing, nil); err != nil {
		slog.WarnContext(ctx, "failed to send closing message", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	if err := in.Chat.DeleteChannel(ctx, order.ChannelId, in.closeDeleteDelay); err != nil {
		slog.WarnContext(ctx, "failed to request channel deletion", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}
}

func (in TicketHttp) assignCard(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.assignCard")
	defer span.End()

	orderNumber := r.PathValue("orderNumber")
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	orderAttr := slog.String(constant.LogFieldOrder, orderNumber)

	slog.InfoContext(ctx, "assign card receive request", orderAttr, traceIdAttr)

	card, err := in.Repo.AssignCardToOrder(ctx, orderNumber, in.TimeNow())
	if err != nil {
		slog.ErrorContext(ctx, "failed to assign card", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	order, findErr := in.Repo.FindOrderByNumber(ctx, orderNumber)
	if findErr == nil && order.ChannelId != "" {
		chatErr := in.Chat.SendMessage(ctx, order.ChannelId, "Card assigned to this order.", map[string]string{"card": card.RawLine})
		if chatErr != nil {
			slog.WarnContext(ctx, "failed to post card to ticket", orderAttr, traceIdAttr, slog.Any(constant.LogFieldErr, chatErr))
		}
	}

	slog.InfoContext(ctx, "assign card success", orderAttr, traceIdAttr, slog.String(constant.LogFieldCard, card.Id))

	writeJSONResponse(w, http.StatusOK, model.AssignCardResponse{OrderNumber: orderNumber, CardId: card.Id})
}

func formatAmount(p *message.Printer, cents int64) string {
	return p.Sprintf("$%d.%02d", cents/100, cents%100)
}

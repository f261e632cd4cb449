package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
	"vcc-fulfillment/common"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/common/otel"
	"vcc-fulfillment/model"
	"vcc-fulfillment/outbound/postgres"
)

// InventoryChecker runs one low-inventory evaluation; force bypasses the
// alert cooldown for that evaluation only.
type InventoryChecker interface {
	Check(ctx context.Context, force bool) (int64, bool, error)
}

type StatsHttp struct {
	Repo    *postgres.Repository
	Checker InventoryChecker

	TimeNow func() time.Time
}

func RegisterStatsHttp(mux *http.ServeMux, repo *postgres.Repository, checker InventoryChecker) *StatsHttp {
	in := &StatsHttp{
		Repo:    repo,
		Checker: checker,
		TimeNow: time.Now,
	}

	mux.HandleFunc("GET /api/stats/today", in.today)
	mux.HandleFunc("POST /api/inventory/check", in.inventoryCheck)

	return in
}

func (in StatsHttp) today(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "StatsHttp.today")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	stats, err := in.Repo.FindDailyStats(ctx, in.TimeNow())
	if err != nil {
		slog.ErrorContext(ctx, "failed to read daily stats", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stats)
}

func (in StatsHttp) inventoryCheck(w http.ResponseWriter, r *http.Request) {
	// An empty body means a plain check without force.
	var req model.InventoryCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "StatsHttp.inventoryCheck")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	unused, sent, err := in.Checker.Check(ctx, req.Force)
	if err != nil {
		slog.ErrorContext(ctx, "inventory check failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, model.InventoryCheckResponse{Unused: unused, AlertSent: sent})
}

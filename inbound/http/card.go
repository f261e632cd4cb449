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
	"vcc-fulfillment/ingest"
	"vcc-fulfillment/model"
	"vcc-fulfillment/outbound/postgres"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type CardHttp struct {
	Repo      *postgres.Repository
	Cache     *redis.Client
	Validate  *validator.Validate
	LineCheck ingest.Validator

	TimeNow func() time.Time

	reportLimit int
}

func RegisterCardHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	repo *postgres.Repository,
	cache *redis.Client,
	validate *validator.Validate,
) *CardHttp {
	in := &CardHttp{
		Repo:      repo,
		Cache:     cache,
		Validate:  validate,
		LineCheck: ingest.NewValidator(validate),
		TimeNow:   time.Now,

		reportLimit: cfg.GetInt("ingest.report_limit"),
	}

	mux.HandleFunc("POST /api/cards", in.addCard)
	mux.HandleFunc("GET /api/cards/stats", in.stats)
	mux.HandleFunc("POST /api/cards/ingest/session", in.openSession)
	mux.HandleFunc("POST /api/cards/ingest", in.ingestLegacy)
	mux.HandleFunc("POST /api/cards/ingest/strict", in.ingestStrict)

	return in
}

func (in CardHttp) addCard(w http.ResponseWriter, r *http.Request) {
	var req model.AddCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CardHttp.addCard")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	rec, err := in.LineCheck.ParseLine(req.Line)
	if err != nil {
		slog.DebugContext(ctx, "rejected malformed card", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	err = in.Repo.InsertCard(ctx, model.Card{Id: rec.Number, RawLine: rec.Raw})
	if err != nil {
		slog.ErrorContext(ctx, "failed to insert card", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "card added", traceIdAttr, slog.String(constant.LogFieldCard, rec.Number))

	writeJSONResponse(w, http.StatusOK, model.AddCardResponse{CardId: rec.Number})
}

func (in CardHttp) stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "CardHttp.stats")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	stats, err := in.Repo.CountCards(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count cards", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	// Keep the gauge warm for the alert monitor; cache misses are harmless.
	if err := in.Cache.Set(ctx, constant.UnusedCardGaugeKey, stats.Unused, 0).Err(); err != nil {
		slog.WarnContext(ctx, "failed to refresh unused card gauge", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	writeJSONResponse(w, http.StatusOK, stats)
}

// openSession reserves a short-lived upload window. A strict batch upload
// that arrives after the window expired is rejected whole, leaving nothing
// half-admitted.
func (in CardHttp) openSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "CardHttp.openSession")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	sessionId := ulid.Make().String()
	key := fmt.Sprintf(constant.IngestSessionKey, sessionId)

	if err := in.Cache.SetNX(ctx, key, true, constant.IngestSessionTTL).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to open ingest session", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "ingest session opened", traceIdAttr, slog.String("session_id", sessionId))

	writeJSONResponse(w, http.StatusOK, model.IngestSessionResponse{
		SessionId: sessionId,
		ExpiresIn: constant.IngestSessionTTL.String(),
	})
}

// ingestLegacy admits valid lines one by one and reports the rest, the
// original per-line ingestion path kept alongside the strict one.
func (in CardHttp) ingestLegacy(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CardHttp.ingestLegacy")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	report := model.IngestReport{}
	for i, raw := range req.Lines {
		lineNo := i + 1

		if ingest.Normalize(raw) == "" {
			continue
		}

		rec, err := in.LineCheck.ParseLine(raw)
		if err != nil {
			report.FormatErrors = append(report.FormatErrors, model.IngestLineError{
				Line:   lineNo,
				Raw:    ingest.Normalize(raw),
				Reason: err.Error(),
			})
			continue
		}

		err = in.Repo.InsertCard(ctx, model.Card{Id: rec.Number, RawLine: rec.Raw})
		if errors.Is(err, errs.ErrDuplicateCard) {
			report.Duplicates = append(report.Duplicates, model.IngestLineError{
				Line:   lineNo,
				Raw:    rec.Raw,
				Reason: "card already in pool",
			})
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to insert card", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			common.UtilSpanError(span, err)
			writeErrorResponse(w, err)
			return
		}

		report.Added++
	}

	report.Accepted = len(report.FormatErrors) == 0 && len(report.Duplicates) == 0

	slog.InfoContext(ctx, "legacy ingest done", traceIdAttr,
		slog.Int("added", report.Added),
		slog.Int("format_errors", len(report.FormatErrors)),
		slog.Int("duplicates", len(report.Duplicates)),
	)

	writeJSONResponse(w, http.StatusOK, in.capReport(report))
}

// ingestStrict admits the batch only when every line is valid and unique:
// otherwise nothing is written.
func (in CardHttp) ingestStrict(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CardHttp.ingestStrict")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	if req.SessionId != "" {
		if err := in.consumeSession(ctx, req.SessionId); err != nil {
			slog.DebugContext(ctx, "ingest session invalid", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}
	}

	candidates := make([]string, 0, len(req.Lines))
	for _, raw := range req.Lines {
		if rec, err := in.LineCheck.ParseLine(raw); err == nil {
			candidates = append(candidates, rec.Number)
		}
	}

	existing := map[string]struct{}{}
	if len(candidates) > 0 {
		var err error
		existing, err = in.Repo.FilterExistingCardIds(ctx, candidates)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check existing cards", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			common.UtilSpanError(span, err)
			writeErrorResponse(w, err)
			return
		}
	}

	accepted, formatErrors, duplicates := in.LineCheck.ValidateBatch(req.Lines, existing)

	report := model.IngestReport{
		FormatErrors: formatErrors,
		Duplicates:   duplicates,
	}

	if len(formatErrors) > 0 || len(duplicates) > 0 {
		slog.InfoContext(ctx, "strict ingest rejected", traceIdAttr,
			slog.Int("format_errors", len(formatErrors)),
			slog.Int("duplicates", len(duplicates)),
		)
		writeJSONResponse(w, http.StatusOK, in.capReport(report))
		return
	}

	cards := make([]model.Card, 0, len(accepted))
	for _, rec := range accepted {
		cards = append(cards, model.Card{Id: rec.Number, RawLine: rec.Raw})
	}

	err := in.Repo.InsertCardBatch(ctx, cards)
	if errors.Is(err, errs.ErrDuplicateCard) {
		// A concurrent upload admitted one of these between validation and
		// commit; the whole batch is rolled back.
		report.Duplicates = append(report.Duplicates, model.IngestLineError{
			Reason: "card admitted concurrently, batch rolled back",
		})
		slog.WarnContext(ctx, "strict ingest lost uniqueness race", traceIdAttr)
		writeJSONResponse(w, http.StatusOK, in.capReport(report))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to insert card batch", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	report.Accepted = true
	report.Added = len(cards)

	slog.InfoContext(ctx, "strict ingest accepted", traceIdAttr, slog.Int("added", report.Added))

	writeJSONResponse(w, http.StatusOK, report)
}

func (in CardHttp) consumeSession(ctx context.Context, sessionId string) error {
	key := fmt.Sprintf(constant.IngestSessionKey, sessionId)

	err := in.Cache.GetDel(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return errs.ErrSessionExpired
	}

	return err
}

// capReport bounds the entries shown to staff; the rest is a count.
func (in CardHttp) capReport(report model.IngestReport) model.IngestReport {
	if in.reportLimit <= 0 {
		return report
	}

	if len(report.FormatErrors) > in.reportLimit {
		report.Omitted += len(report.FormatErrors) - in.reportLimit
		report.FormatErrors = report.FormatErrors[:in.reportLimit]
	}

	if len(report.Duplicates) > in.reportLimit {
		report.Omitted += len(report.Duplicates) - in.reportLimit
		report.Duplicates = report.Duplicates[:in.reportLimit]
	}

	return report
}

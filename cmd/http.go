package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"
	commonJetstream "vcc-fulfillment/common/jetstream"
	inboundCron "vcc-fulfillment/inbound/cron"
	inboundHttp "vcc-fulfillment/inbound/http"
	"vcc-fulfillment/outbound/chatgw"
	"vcc-fulfillment/outbound/postgres"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func runHttpServerCmd(ctx context.Context) {
	cfg := newCfg("env")

	if provider := newTracerProvider(ctx, cfg); provider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				slog.Error("unable to shutdown tracer provider", slog.Any("error", err))
			}
		}()
	}

	validate := validator.New()

	db := newDb(cfg)
	defer db.Close()

	cacheClient := newRedis(cfg)
	defer cacheClient.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	commonJetstream.CreateQueueStream(ctx, js)

	repo := postgres.New(db)
	chat := chatgw.NewNatsGateway(natsConn, js, cfg.GetDuration("chat.request_timeout"))
	currencyFormatter := message.NewPrinter(language.English)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "health check")
		w.WriteHeader(http.StatusOK)
	})

	timeoutMiddleware := inboundHttp.TimeoutMiddleware(20 * time.Second)

	alertCron := &inboundCron.AlertCron{
		Cfg:   cfg,
		Repo:  repo,
		Cache: cacheClient,
		Chat:  chat,
	}

	ticketCron := &inboundCron.TicketCron{
		Cfg:               cfg,
		Repo:              repo,
		Chat:              chat,
		CurrencyFormatter: currencyFormatter,
	}

	inboundHttp.RegisterTicketHttp(mux, cfg, repo, cacheClient, chat, validate, currencyFormatter)
	inboundHttp.RegisterCardHttp(mux, cfg, repo, cacheClient, validate)
	inboundHttp.RegisterStatsHttp(mux, repo, alertCron)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetInt("server.port")),
		Handler:           timeoutMiddleware(inboundHttp.CorsMiddleware(mux)),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("unable to start server", err)
		}
	}()

	slog.Info("http server started")

	go func() {
		ticketCron.Start(ctx)
	}()

	go func() {
		alertCron.Start(ctx)
	}()

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		log.Fatalln("unable to shutdown server", err)
	}

	slog.Info("http server stopped")
}

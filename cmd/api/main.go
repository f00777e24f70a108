package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enerkpi.org/internal/anomaly"
	"enerkpi.org/internal/anomaly/scorer"
	"enerkpi.org/internal/audit"
	"enerkpi.org/internal/auth"
	"enerkpi.org/internal/chatbot"
	"enerkpi.org/internal/chatbot/nlu"
	"enerkpi.org/internal/config"
	"enerkpi.org/internal/energy"
	"enerkpi.org/internal/httpapi"
	"enerkpi.org/internal/mailer"
	"enerkpi.org/internal/obs"
	"enerkpi.org/internal/store/pg"
)

var version = "1.2.0"

func main() {
	cfg := config.MustLoad()
	log := obs.NewLogger(cfg.AppEnv)
	obs.Init()

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if cfg.BootstrapSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("bootstrap schema")
		}
		cancel()
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret,
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithTTL(cfg.AccessTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}

	audits := audit.NewService(store.Audit(), log)
	users := auth.NewService(store.Users(), tokens, audits, mailer.NewLogMailer(log), log)
	energySvc := energy.NewService(store.Energy(), audits, log)
	anomalies := anomaly.NewService(store.Anomalies(), audits, log)

	scoring := scorer.New(cfg.ScorerURL, cfg.ScorerTimeout)
	orch := anomaly.NewOrchestrator(store.Anomalies(), store.Energy(), scoring, log)
	scheduler := anomaly.NewScheduler(orch, cfg.ScanHour, log)

	interp := nlu.New(cfg.NLUURL, cfg.NLUTimeout)
	chat := chatbot.NewRouter(interp, anomalies, audits, energySvc, log)

	api := httpapi.New(httpapi.Deps{
		Log:           log,
		Users:         users,
		Tokens:        tokens,
		Audits:        audits,
		Anomalies:     anomalies,
		Orch:          orch,
		Energy:        energySvc,
		Chat:          chat,
		Ready:         httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	go scheduler.Run(schedCtx)

	log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting enerkpi-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")

	stopScheduler()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Info().Msg("stopped")
}

// Command server runs the translation backend: the websocket streaming
// endpoint, the batch REST API, and the media file server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver

	"github.com/tafahom/backend/internal/aiclient"
	"github.com/tafahom/backend/internal/auth"
	"github.com/tafahom/backend/internal/billing"
	"github.com/tafahom/backend/internal/config"
	"github.com/tafahom/backend/internal/glossary"
	"github.com/tafahom/backend/internal/httpapi"
	"github.com/tafahom/backend/internal/pipeline"
	"github.com/tafahom/backend/internal/session"
	"github.com/tafahom/backend/internal/translation"
	"github.com/tafahom/backend/internal/videogen"
	"github.com/tafahom/backend/internal/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	gloss := glossary.Default()
	if cfg.Media.GlossaryPath != "" {
		gloss, err = glossary.Load(cfg.Media.GlossaryPath)
		if err != nil {
			log.Error("glossary load failed", "path", cfg.Media.GlossaryPath, "error", err)
			os.Exit(1)
		}
	}

	var cache videogen.URLCache
	if cfg.Redis.Addr != "" {
		rc, err := videogen.NewRedisURLCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, video URL cache disabled", "error", err)
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	assembler, err := videogen.New(videogen.Options{
		Glossary:      gloss,
		MediaRoot:     cfg.Media.Root,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		FFmpegBin:     cfg.Media.FFmpegBin,
		Cache:         cache,
		Logger:        log,
	})
	if err != nil {
		log.Error("video assembler init failed", "error", err)
		os.Exit(1)
	}

	ai := aiclient.New(cfg.AI.Timeout(), cfg.AI.APIKey)
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Vision:      aiclient.NewVisionClient(ai, cfg.AI.VisionBaseURL),
		TextToGloss: aiclient.NewTextToGlossClient(ai, cfg.AI.TextToGlossBaseURL),
		GlossToText: aiclient.NewGlossToTextClient(ai, cfg.AI.GlossToTextBaseURL),
		STT:         aiclient.NewSTTClient(ai, cfg.AI.STTBaseURL),
		TTS:         aiclient.NewTTSClient(ai, cfg.AI.TTSBaseURL),
		Glossary:    gloss,
		Video:       assembler,
		Timeout:     cfg.AI.Timeout(),
		Logger:      log,
	})

	wallet := billing.NewService(billing.NewPostgresStore(db))
	records := translation.NewPostgresStore(db)
	verifier := auth.NewHMACVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer)

	sessions := ws.SessionFactory(func(userID string, emit session.Emitter) *session.Controller {
		return session.New(session.Options{
			UserID:     userID,
			Limits:     cfg.Streaming,
			Translator: orch,
			Wallet:     wallet,
			Records:    records,
			Emitter:    emit,
			Logger:     log,
		})
	})
	streamHandler := ws.NewHandler(verifier, cfg.Streaming, sessions, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Verifier:      verifier,
		Orchestrator:  orch,
		Wallet:        wallet,
		Records:       records,
		StreamHandler: streamHandler,
		MediaRoot:     cfg.Media.Root,
		DBPing:        db.PingContext,
		Logger:        log,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	log.Info("server starting", "port", cfg.Server.Port, "env", cfg.Server.Env)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callmind/internal/auth"
	"callmind/internal/calls"
	"callmind/internal/config"
	"callmind/internal/httpapi"
	"callmind/internal/incidents"
	"callmind/internal/outbound"
	"callmind/internal/reconcile"
	"callmind/internal/voice"
	"callmind/pkg/logger"
	"callmind/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	templates, err := incidents.LoadTemplates(cfg.ElevenLabs.SystemPromptFile, cfg.ElevenLabs.FirstMessageFile)
	if err != nil {
		log.Error("template load failed", "err", err)
		os.Exit(1)
	}

	store := calls.NewPostgresStore(db)
	provider := voice.NewElevenLabs(cfg.ElevenLabs)
	reconciler := reconcile.NewReconciler(store, provider, reconcile.RedisOnceGuard{RDB: rdb})
	outboundSvc := outbound.NewService(store, provider, provider, reconciler, provider.AgentID(), provider.AgentPhoneNumberID())
	incidentSvc := incidents.NewService(provider, templates)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:       authManager,
		Reconciler: reconciler,
		Outbound:   outboundSvc,
		Incidents:  incidentSvc,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Detached transcript fetches outlive their webhook requests; let them
	// land before the process exits.
	reconciler.Wait()
}

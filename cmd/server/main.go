package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BerylCAtieno/recommendation-agent/internal/a2a"
	"github.com/BerylCAtieno/recommendation-agent/internal/api"
	"github.com/BerylCAtieno/recommendation-agent/internal/config"
	"github.com/BerylCAtieno/recommendation-agent/internal/executor"
	"github.com/BerylCAtieno/recommendation-agent/internal/gateway"
	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/pipeline"
	"github.com/BerylCAtieno/recommendation-agent/internal/prompts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with an error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := loadPrompts(cfg.Prompts)
	if err != nil {
		return err
	}

	gw, closeGateway, err := gateway.Open(ctx, cfg.Gateway)
	if err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() {
		if err := closeGateway(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close gateway")
		}
	}()

	exec := executor.New(cfg.Executor)
	orchestrator := pipeline.New(exec, prompts.NewAssembler(registry), gw, pipeline.Options{
		Mode:          cfg.Pipeline.Mode,
		ItemCount:     cfg.Pipeline.ItemCount,
		DefaultLocale: cfg.Pipeline.DefaultLocale,
	})

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.NewHandler(orchestrator, cfg.Upload.MaxBytes))

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	agent, err := a2a.NewHandler(orchestrator, a2a.NewAgentCard(publicURL, registry.Locales()))
	if err != nil {
		return err
	}
	agent.Register(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Executor.FullDeadline + 30*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info().
			Int("port", cfg.Server.Port).
			Str("provider", cfg.Gateway.Provider).
			Str("pipeline_mode", orchestrator.Mode()).
			Strs("locales", registry.Locales()).
			Str("agent_card", publicURL+"/.well-known/agent.json").
			Msg("Recommendation service starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := exec.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("executor shutdown: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}

func loadPrompts(cfg config.PromptsConfig) (*prompts.Registry, error) {
	if cfg.Path == "" {
		return prompts.Default()
	}
	reg, err := prompts.LoadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Strs("locales", reg.Locales()).Msg("Loaded prompt templates")
	return reg, nil
}

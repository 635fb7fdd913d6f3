package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/studiolink/studiolink/internal/config"
	"github.com/studiolink/studiolink/internal/diag"
	"github.com/studiolink/studiolink/internal/handler"
	"github.com/studiolink/studiolink/internal/hub"
	"github.com/studiolink/studiolink/internal/registry"
	"github.com/studiolink/studiolink/internal/service"
	pkglog "github.com/studiolink/studiolink/pkg/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	backlog := diag.NewBacklog(cfg.Diag.BacklogSize)
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "studiolink",
		Tee:         backlog,
	})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting studiolink")

	// Initialize core components
	eventHub := hub.New(cfg.Hub.RetainedEvents)
	roomRegistry := registry.New()
	coordinator := service.NewCoordinatorService(eventHub, roomRegistry)

	// Initialize handlers
	wsHandler := handler.NewWSHandler(coordinator, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(coordinator, backlog)

	router := mux.NewRouter()
	router.Use(pkglog.HTTPMiddleware(logger))
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("studiolink listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down studiolink")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}

	logger.Info().Msg("studiolink stopped")
}

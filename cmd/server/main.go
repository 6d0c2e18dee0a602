package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"swish-forms/internal/api"
	"swish-forms/internal/app"
	"swish-forms/internal/config"
	"swish-forms/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise", zap.Error(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := a.SeedForms(ctx, cfg.FormsFile); err != nil {
		logger.Fatal("Failed to seed form registry", zap.String("file", cfg.FormsFile), zap.Error(err))
	} else if n > 0 {
		logger.Info("Seeded form registry", zap.Int("forms", n))
	}

	go a.PurgeRateLimits(ctx, 15*time.Minute)
	go a.Feed.Run(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.Default()
	r.Use(api.CORS())
	api.Mount(r, a.Deps())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logger.Info("Server starting", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to run server", zap.Error(err))
	}
}

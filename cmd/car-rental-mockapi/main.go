// Command car-rental-mockapi serves an in-memory car-rental API for local
// development of the client.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/config"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/mockapi"
)

func main() {
	log, err := logging.New(os.Getenv("LOG_LEVEL"), false)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadMockAPI()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	server, err := mockapi.New(mockapi.Config{
		JWTSecret:      cfg.JWTSecret,
		DeclinePrefix:  cfg.DeclinePrefix,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)
	if err != nil {
		log.Fatal("failed to create mock server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("mock API listening",
			zap.String("addr", cfg.Addr),
			zap.String("demo_user", mockapi.DemoUsername),
			zap.String("decline_prefix", cfg.DeclinePrefix))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("shutdown failed", zap.Error(err))
	}
}

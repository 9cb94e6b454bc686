package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/semcache/semcache/cache"
	"github.com/semcache/semcache/config"
	"github.com/semcache/semcache/monitoring"
	"github.com/semcache/semcache/server"
	"github.com/semcache/semcache/utils"
)

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}

	cacheConfig, err := cfg.CacheConfig()
	if err != nil {
		sugar.Fatalw("Invalid cache config", "error", err)
	}

	store, err := cache.New(cacheConfig, sugar)
	if err != nil {
		sugar.Fatalw("Failed to create cache", "error", err)
	}

	monitor, err := monitoring.NewMonitor("semcache", store, sugar)
	if err != nil {
		sugar.Fatalw("Failed to create monitor", "error", err)
	}

	router := mux.NewRouter()
	server.NewAPI(store, sugar).RegisterRoutes(router)
	router.Handle(cfg.MetricsPath, monitor.Handler()).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: corsMiddleware.Handler(router),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		store.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Errorw("Failed to shutdown HTTP server gracefully", "error", err)
		}
	}()

	sugar.Infow("Starting semcached", "address", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("HTTP server error", "error", err)
	}
}

// Command mockapi serves an in-memory expenses collection with the same REST
// shape as the hosted API. Records are seeded from data/seed_expenses.json.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
	"expensetracker/internal/mockapi"
	"expensetracker/internal/remote/memory"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentMockAPI,
	})
	applog.SetDefault(logger)

	store, err := memory.NewFromFile("data", memory.WithSequentialIDs())
	if err != nil {
		logger.Error("Failed to seed store", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mockapi.NewServer(":"+cfg.MockAPIPort, store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting mock API", "port", cfg.MockAPIPort, applog.FieldCount, store.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Mock API stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Mock API stopped")
}

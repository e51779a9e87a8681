// Command expense-audit consumes the operation result feed and logs a tally
// per operation when it stops.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"expensetracker/internal/amqp"
	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentAudit,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the audit consumer")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditor := services.NewResultAuditor(client, logger)
	if err := auditor.Start(ctx); err != nil {
		logger.Error("Failed to start auditor", applog.FieldError, err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-auditor.Done():
		logger.Warn("Result feed ended")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopErr := auditor.Stop(shutdownCtx)

	for _, st := range auditor.Stats() {
		logger.Info("Operation tally",
			applog.FieldOperation, st.Operation,
			"successes", st.Successes,
			"failures", st.Failures,
			"last_failure", st.LastFailure)
	}
	if stopErr != nil {
		logger.Error("Auditor stopped with error", applog.FieldError, stopErr)
		os.Exit(1)
	}
}

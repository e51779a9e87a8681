package backend

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/amqp"
	applog "expensetracker/internal/log"
	"expensetracker/internal/remote"
	"expensetracker/internal/remote/httpapi"
	"expensetracker/internal/remote/memory"
	"expensetracker/internal/remote/sheets"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend opens the local store, connects the selected remote and wires the services.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rem, err := f.createRemote(ctx, config)
	if err != nil {
		return nil, err
	}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	opts := []services.Option{services.WithLogger(f.logger)}
	if config.RemoteTimeout > 0 {
		opts = append(opts, services.WithRemoteTimeout(config.RemoteTimeout))
	}

	// AMQP is optional; a broker that is down only disables the result feed.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without result feed", applog.FieldError, err)
			amqpClient = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			opts = append(opts, services.WithPublisher(amqpClient))
		}
	}

	reconciler := services.NewReconciler(repo, rem, opts...)

	f.logger.Info("Initialized backend",
		applog.FieldBackend, config.Type.String(),
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Store:      repo,
		Remote:     rem,
		Reconciler: reconciler,
		Browser:    services.NewBrowser(repo),
		Publishing: amqpClient != nil,
		Cleanup: func() error {
			reconciler.Wait()
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createRemote(ctx context.Context, config Config) (remote.Remote, error) {
	switch config.Type {
	case HTTPBackend:
		cli, err := httpapi.New(config.RemoteBaseURL, config.RemoteTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote API client: %w", err)
		}
		f.logger.Info("Initialized HTTP remote", "base_url", config.RemoteBaseURL)
		return cli, nil

	case SheetsBackend:
		cli, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets remote")
		return cli, nil

	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store, err := memory.NewFromFile(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory remote: %w", err)
		}
		f.logger.Info("Initialized memory remote", "data_directory", dataDir, "seeded", store.Len())
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

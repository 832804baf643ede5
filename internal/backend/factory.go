package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"charity/internal/amqp"
	"charity/internal/store"
	"charity/internal/store/memory"
	"charity/internal/store/rtdb"
	"charity/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the configured store, the Firebase app when needed,
// and the optional AMQP publisher. Failing to reach the broker is logged and
// the backend runs without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result := &BackendResult{}

	if config.NeedsFirebaseApp() {
		app, err := rtdb.NewApp(ctx, config.FirebaseDatabaseURL, config.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		result.App = app
	}

	s, err := f.createStore(ctx, config, result)
	if err != nil {
		return nil, err
	}
	result.Store = s

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = client
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.Publisher != nil {
			errs = append(errs, result.Publisher.Close())
		}
		errs = append(errs, result.Store.Close())
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config, result *BackendResult) (store.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		s, err := sqlite.New(config.SQLiteDBPath, config.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return s, nil

	case FirebaseBackend:
		s, err := rtdb.New(ctx, result.App, config.FirebaseDatabaseURL, config.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase store: %w", err)
		}
		f.logger.Info("Initialized Firebase backend", "database_url", config.FirebaseDatabaseURL)
		return s, nil

	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

package backend

import (
	"context"
	"fmt"

	"kakeibo/internal/amqp"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
	"kakeibo/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the store and, when configured, the event client. A
// broker that cannot be reached only disables events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = sqlite.Open(ctx, config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	res := &Result{Store: store}
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue,
			f.amqpOptions(config)...)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			res.Events = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}
	res.Cleanup = closeAll(res)
	return res, nil
}

func (f *DefaultFactory) amqpOptions(config Config) []amqp.Option {
	opts := []amqp.Option{
		amqp.WithLogger(f.logger),
		amqp.WithPrefetch(config.WorkerPrefetch),
	}
	if len(config.AMQPBindings) > 0 {
		opts = append(opts, amqp.WithBindings(config.AMQPBindings...))
	}
	return opts
}

// closeAll closes the store and the event client, reporting both failures.
func closeAll(res *Result) CleanupFunc {
	return func() error {
		var errs []error
		if res.Store != nil {
			if err := res.Store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		if res.Events != nil {
			if err := res.Events.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("close backend: %v", errs)
		}
		return nil
	}
}

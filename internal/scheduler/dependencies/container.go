package dependencies

import (
	"context"
	"fmt"
	"log/slog"

	"NetCollect/internal/collector/workers"
	"NetCollect/internal/config"
	"NetCollect/internal/scheduler/services"
	"NetCollect/internal/scheduler/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Container контейнер зависимостей
type Container struct {
	// Config
	Config *config.Config

	// Logger
	Logger *slog.Logger

	// Storage
	ServerStore  storage.ServerStore
	TaskStore    storage.TaskStore
	ResultStore  storage.ResultStore
	SessionStore storage.SessionStore
	Registry     storage.WorkerRegistryStore

	// Workers
	Factory *workers.Factory

	// Services
	Clock      *services.ClockService
	Placement  *services.PlacementService
	Aggregator *services.AggregatorService
	Dispatcher *services.DispatcherService

	// Database connections
	DB *pgxpool.Pool
}

// NewContainer создает и инициализирует контейнер зависимостей
func NewContainer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	container := &Container{
		Config: cfg,
		Logger: log,
	}

	// Инициализация зависимостей
	if err := container.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := container.initRedis(); err != nil {
		return nil, err
	}

	if err := container.initStorage(); err != nil {
		return nil, err
	}

	if err := container.initWorkers(); err != nil {
		return nil, err
	}

	if err := container.initServices(); err != nil {
		return nil, err
	}

	log.Info("dependency container initialized successfully")
	return container, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	db, err := storage.NewPostgres(ctx, &c.Config.Database, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	c.DB = db
	return nil
}

func (c *Container) initRedis() error {
	registry, err := storage.NewRedisRegistry(&c.Config.Redis, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.Registry = registry
	return nil
}

func (c *Container) initStorage() error {
	c.ServerStore = storage.NewServerStore(c.DB)
	c.TaskStore = storage.NewTaskStore(c.DB)
	c.ResultStore = storage.NewResultStore(c.DB)
	c.SessionStore = storage.NewSessionStore(c.DB)
	return nil
}

func (c *Container) initWorkers() error {
	c.Factory = workers.NewFactory(c.Config.Pool, c.Config.Scheduler.WorkerGroup, c.SessionStore, c.Logger)
	return nil
}

func (c *Container) initServices() error {
	c.Clock = services.NewClockService(c.TaskStore, c.Logger.With("service", "clock"))

	c.Placement = services.NewPlacementService(
		c.Registry,
		c.Config.Scheduler.HeartbeatInterval,
		c.Config.Scheduler.LivenessWindow,
		c.Logger.With("service", "placement"),
	)
	for _, w := range c.Factory.All() {
		c.Placement.Register(w.Descriptor())
	}

	c.Aggregator = services.NewAggregatorService(
		c.TaskStore,
		c.ResultStore,
		c.ServerStore,
		c.Registry,
		c.Clock,
		c.Config.Scheduler.MaxConsecutiveFailures,
		c.Logger.With("service", "aggregator"),
	)

	c.Dispatcher = services.NewDispatcherService(
		c.TaskStore,
		c.ServerStore,
		c.Clock,
		c.Placement,
		c.Aggregator,
		c.Factory,
		c.Config.Scheduler,
		c.Logger.With("service", "dispatcher"),
	)

	return nil
}

// Close закрывает все соединения
func (c *Container) Close() error {
	var errors []error

	if c.Factory != nil {
		if err := c.Factory.Close(); err != nil {
			errors = append(errors, err)
		}
	}

	if c.DB != nil {
		c.DB.Close()
	}

	if c.Registry != nil {
		if err := c.Registry.Close(); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errors)
	}

	return nil
}

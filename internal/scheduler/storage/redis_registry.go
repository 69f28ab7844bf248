package storage

import (
	"NetCollect/internal/config"
	"NetCollect/internal/scheduler/models"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry хранит heartbeat-ы воркеров с TTL и публикует уведомления о результатах
func NewRedisRegistry(cfg *config.RedisConfig, log *slog.Logger) (WorkerRegistryStore, error) {
	client := redis.NewClient(cfg.GetRedisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("connected to Redis")
	return &redisRegistry{client: client}, nil
}

// UpsertHeartbeat записывает дескриптор воркера; ключ истекает сам,
// если воркер перестал подавать признаки жизни
func (r *redisRegistry) UpsertHeartbeat(ctx context.Context, desc *models.WorkerDescriptor, ttl time.Duration) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal worker descriptor: %w", err)
	}

	key := "workers:" + desc.ID
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store worker heartbeat: %w", err)
	}

	return nil
}

func (r *redisRegistry) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *redisRegistry) Close() error {
	return r.client.Close()
}

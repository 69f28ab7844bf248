package storage

import (
	"NetCollect/internal/scheduler/models"
	"context"
	"time"
)

// ServerStore интерфейс для работы с серверами;
// ядро читает их и меняет только статус при сбоях соединения
type ServerStore interface {
	Create(ctx context.Context, server *models.Server) error
	GetByID(ctx context.Context, id string) (*models.Server, error)
	UpdateStatus(ctx context.Context, id string, status models.ServerStatus) error
	List(ctx context.Context, limit, offset int) ([]*models.Server, error)
}

// TaskStore интерфейс для работы с задачами сбора
type TaskStore interface {
	Create(ctx context.Context, task *models.CollectionTask) error
	GetByID(ctx context.Context, id string) (*models.CollectionTask, error)
	// ListDue возвращает активные задачи, срок которых наступил,
	// упорядоченные по next_run_at по возрастанию
	ListDue(ctx context.Context, now time.Time) ([]*models.CollectionTask, error)
	// CompareAndSetStatus атомарный переход статуса; false если текущий статус не from
	CompareAndSetStatus(ctx context.Context, id string, from, to models.TaskStatus) (bool, error)
	Update(ctx context.Context, task *models.CollectionTask) error
	List(ctx context.Context, limit, offset int) ([]*models.CollectionTask, error)
}

// ResultStore интерфейс для работы с результатами выполнения
type ResultStore interface {
	// Append добавляет запись; false без ошибки, если execution_id уже записан
	Append(ctx context.Context, result *models.CollectionResult) (bool, error)
	ListByTask(ctx context.Context, taskID string, limit int) ([]*models.CollectionResult, error)
}

// SessionStore интерфейс для отражения состояния пула соединений
type SessionStore interface {
	Upsert(ctx context.Context, session *models.ConnectionSession) error
	ListConnected(ctx context.Context) ([]*models.ConnectionSession, error)
}

// WorkerRegistryStore персистентность heartbeat-ов воркеров и канал уведомлений
type WorkerRegistryStore interface {
	UpsertHeartbeat(ctx context.Context, desc *models.WorkerDescriptor, ttl time.Duration) error
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

package services

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"fmt"
	"log/slog"
	"time"
)

const resultsChannel = "collection:results"

// AggregatorService фиксирует исход выполнения: запись результата,
// счетчики, следующий срок и итоговый статус задачи
type AggregatorService struct {
	tasks       storage.TaskStore
	results     storage.ResultStore
	servers     storage.ServerStore
	registry    storage.WorkerRegistryStore
	clock       *ClockService
	maxFailures int
	logger      *slog.Logger
}

func NewAggregatorService(
	tasks storage.TaskStore,
	results storage.ResultStore,
	servers storage.ServerStore,
	registry storage.WorkerRegistryStore,
	clock *ClockService,
	maxFailures int,
	logger *slog.Logger,
) *AggregatorService {
	return &AggregatorService{
		tasks:       tasks,
		results:     results,
		servers:     servers,
		registry:    registry,
		clock:       clock,
		maxFailures: maxFailures,
		logger:      logger,
	}
}

// Record применяет результат ровно один раз: повтор по execution_id
// не трогает ни счетчики, ни статус, ни расписание
func (s *AggregatorService) Record(ctx context.Context, task *models.CollectionTask, result *models.CollectionResult) error {
	inserted, err := s.results.Append(ctx, result)
	if err != nil {
		return fmt.Errorf("record result for task %s: %w", task.ID, err)
	}
	if !inserted {
		s.logger.Warn("duplicate execution ignored",
			"task_id", task.ID,
			"execution_id", result.ExecutionID,
		)
		return nil
	}

	task.RunCount++
	if result.Status == models.ResultSuccess {
		task.SuccessCount++
		task.ConsecutiveFailures = 0
	} else {
		task.ErrorCount++
		task.ConsecutiveFailures++
	}

	collectedAt := result.CollectedAt
	task.LastRunAt = &collectedAt

	nextStatus, err := s.settle(task, collectedAt)
	if err != nil {
		return err
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("record result for task %s: %w", task.ID, err)
	}

	if ok, err := s.tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusRunning, nextStatus); err != nil {
		return fmt.Errorf("record result for task %s: %w", task.ID, err)
	} else if !ok {
		// оператор мог деактивировать задачу, пока она выполнялась
		s.logger.Warn("task status changed during execution",
			"task_id", task.ID,
			"wanted", nextStatus,
		)
	} else {
		task.Status = nextStatus
	}

	if result.Status == models.ResultSuccess {
		s.restoreServer(ctx, task.ServerID)
	}

	s.notify(ctx, task, result)

	s.logger.Info("result recorded",
		"task_id", task.ID,
		"execution_id", result.ExecutionID,
		"status", result.Status,
		"task_status", task.Status,
		"duration_s", result.ExecutionTime,
	)
	return nil
}

// settle вычисляет итоговый статус и следующий срок запуска
func (s *AggregatorService) settle(task *models.CollectionTask, completedAt time.Time) (models.TaskStatus, error) {
	if task.IsOneShot() {
		task.NextRunAt = nil
		if task.ConsecutiveFailures > 0 {
			return models.TaskStatusFailed, nil
		}
		return models.TaskStatusCompleted, nil
	}

	if task.ConsecutiveFailures >= s.maxFailures {
		task.NextRunAt = nil
		s.logger.Warn("task disabled after consecutive failures",
			"task_id", task.ID,
			"failures", task.ConsecutiveFailures,
		)
		return models.TaskStatusFailed, nil
	}

	next, err := s.clock.NextRun(task.Schedule, completedAt)
	if err != nil {
		return "", fmt.Errorf("compute next run for task %s: %w", task.ID, err)
	}
	task.NextRunAt = next
	return models.TaskStatusActive, nil
}

// restoreServer возвращает сервер в active после успешного сбора
func (s *AggregatorService) restoreServer(ctx context.Context, serverID string) {
	server, err := s.servers.GetByID(ctx, serverID)
	if err != nil || server == nil {
		return
	}
	if server.Status != models.ServerStatusError {
		return
	}

	if err := s.servers.UpdateStatus(ctx, serverID, models.ServerStatusActive); err != nil {
		s.logger.Warn("failed to restore server status", "server_id", serverID, "error", err)
	}
}

func (s *AggregatorService) notify(ctx context.Context, task *models.CollectionTask, result *models.CollectionResult) {
	if s.registry == nil {
		return
	}

	err := s.registry.Publish(ctx, resultsChannel, map[string]interface{}{
		"task_id":      task.ID,
		"server_id":    task.ServerID,
		"execution_id": result.ExecutionID,
		"status":       result.Status,
		"collected_at": result.CollectedAt,
	})
	if err != nil {
		s.logger.Warn("failed to publish result notification", "task_id", task.ID, "error", err)
	}
}

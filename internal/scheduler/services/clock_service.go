package services

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"log/slog"
	"time"
)

// ClockService определяет, какие задачи пора выполнять,
// и вычисляет следующий срок запуска
type ClockService struct {
	tasks  storage.TaskStore
	logger *slog.Logger
}

func NewClockService(tasks storage.TaskStore, logger *slog.Logger) *ClockService {
	return &ClockService{tasks: tasks, logger: logger}
}

// Due возвращает активные задачи с наступившим сроком,
// в порядке возрастания next_run_at
func (s *ClockService) Due(ctx context.Context, now time.Time) ([]*models.CollectionTask, error) {
	return s.tasks.ListDue(ctx, now)
}

// NextRun вычисляет следующий срок от момента завершения,
// а не от планового; длинные выполнения не накапливают долг
func (s *ClockService) NextRun(schedule *models.ScheduleConfig, completedAt time.Time) (*time.Time, error) {
	if schedule == nil {
		return nil, nil
	}

	interval, err := schedule.Interval()
	if err != nil {
		return nil, err
	}

	next := completedAt.Add(interval)
	return &next, nil
}

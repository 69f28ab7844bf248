package services

import (
	"NetCollect/internal/collector/pool"
	"NetCollect/internal/collector/workers"
	"NetCollect/internal/config"
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"NetCollect/pkg/uuidutil"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DispatcherService цикл раздачи: забирает созревшие задачи,
// захватывает их через CAS и выполняет на выбранных воркерах
type DispatcherService struct {
	tasks      storage.TaskStore
	servers    storage.ServerStore
	clock      *ClockService
	placement  *PlacementService
	aggregator *AggregatorService
	factory    *workers.Factory
	cfg        config.SchedulerConfig
	logger     *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewDispatcherService(
	tasks storage.TaskStore,
	servers storage.ServerStore,
	clock *ClockService,
	placement *PlacementService,
	aggregator *AggregatorService,
	factory *workers.Factory,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *DispatcherService {
	return &DispatcherService{
		tasks:      tasks,
		servers:    servers,
		clock:      clock,
		placement:  placement,
		aggregator: aggregator,
		factory:    factory,
		cfg:        cfg,
		logger:     logger,
		sem:        make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run опрашивает расписание до отмены контекста; выполнение
// ограничено max_concurrent одновременными задачами
func (s *DispatcherService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("dispatcher started",
		"poll_interval", s.cfg.PollInterval,
		"max_concurrent", s.cfg.MaxConcurrent,
	)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("dispatcher stopped")
			return
		case now := <-ticker.C:
			s.poll(ctx, now)
		}
	}
}

func (s *DispatcherService) poll(ctx context.Context, now time.Time) {
	due, err := s.clock.Due(ctx, now)
	if err != nil {
		s.logger.Error("failed to list due tasks", "error", err)
		return
	}

	for _, task := range due {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.wg.Add(1)
		go func(task *models.CollectionTask) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			if err := s.Dispatch(ctx, task); err != nil {
				switch {
				case errors.Is(err, ErrConcurrentDispatch):
					// нормальная гонка между циклами опроса
				case errors.Is(err, ErrNoEligibleWorker):
					s.logger.Warn("no eligible worker, task deferred", "task_id", task.ID)
				case errors.Is(err, ErrAffinityUnsatisfiable):
					s.logger.Warn("worker group not live, task deferred",
						"task_id", task.ID,
						"group", task.WorkerGroup(),
					)
				default:
					s.logger.Error("dispatch failed", "task_id", task.ID, "error", err)
				}
			}
		}(task)
	}
}

// Dispatch выполняет одну задачу от захвата до записи результата.
// Вызывается и циклом опроса, и операторским ручным запуском.
func (s *DispatcherService) Dispatch(ctx context.Context, task *models.CollectionTask) error {
	claimed, err := s.tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusActive, models.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("claim task %s: %w", task.ID, err)
	}
	if !claimed {
		return ErrConcurrentDispatch
	}
	task.Status = models.TaskStatusRunning

	server, err := s.servers.GetByID(ctx, task.ServerID)
	if err != nil {
		return s.recordFailure(ctx, task, fmt.Errorf("server lookup failed: %w", err), 0)
	}
	if server == nil {
		return s.recordFailure(ctx, task, fmt.Errorf("server not found: %s", task.ServerID), 0)
	}

	worker, err := s.factory.GetWorker(server.ProtocolType)
	if err != nil {
		return s.recordFailure(ctx, task, err, 0)
	}

	workerID, err := s.placement.Select(server.ProtocolType, task.WorkerGroup(), task.ExclusionTags(), task.ID)
	if err != nil {
		if errors.Is(err, ErrAffinityUnsatisfiable) {
			s.warnAffinity(ctx, task)
		}
		// размещение не состоялось — возвращаем задачу в очередь
		// без записи результата, next_run_at не трогаем
		if _, casErr := s.tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusRunning, models.TaskStatusActive); casErr != nil {
			s.logger.Error("failed to release claimed task", "task_id", task.ID, "error", casErr)
		}
		return err
	}
	defer s.placement.Release(workerID, task.ID)

	executionID := uuidutil.New()
	timeout := task.Timeout(s.cfg.TaskTimeout)

	s.logger.Info("task dispatched",
		"task_id", task.ID,
		"worker", workerID,
		"execution_id", uuidutil.Short(executionID),
		"timeout", timeout,
	)

	start := time.Now()
	data, execErr := worker.Execute(ctx, server, task.Operation, timeout)
	duration := time.Since(start)
	collectedAt := time.Now()

	var result *models.CollectionResult
	switch {
	case execErr == nil:
		result = models.NewSuccessResult(task, executionID, data, duration, collectedAt)
	case errors.Is(execErr, workers.ErrCommandTimeout):
		result = models.NewTimeoutResult(task, executionID, duration, collectedAt)
	default:
		result = models.NewErrorResult(task, executionID, execErr, duration, collectedAt)
		s.markServerError(ctx, server, execErr)
	}

	return s.aggregator.Record(ctx, task, result)
}

// recordFailure фиксирует сбой, случившийся до выполнения операции
func (s *DispatcherService) recordFailure(ctx context.Context, task *models.CollectionTask, cause error, duration time.Duration) error {
	result := models.NewErrorResult(task, uuidutil.New(), cause, duration, time.Now())
	if err := s.aggregator.Record(ctx, task, result); err != nil {
		return err
	}
	return cause
}

// warnAffinity помечает задачу предупреждением о группе без живых воркеров
func (s *DispatcherService) warnAffinity(ctx context.Context, task *models.CollectionTask) {
	warning := fmt.Sprintf("worker group %q has no live workers, task cannot be placed", task.WorkerGroup())
	if task.ConfigWarning == warning {
		return
	}

	task.ConfigWarning = warning
	if err := s.tasks.Update(ctx, task); err != nil {
		s.logger.Warn("failed to persist config warning", "task_id", task.ID, "error", err)
	}
	s.logger.Warn("task affinity unsatisfiable",
		"task_id", task.ID,
		"group", task.WorkerGroup(),
	)
}

// markServerError переводит сервер в error при сбое соединения;
// ошибки команд статус сервера не меняют
func (s *DispatcherService) markServerError(ctx context.Context, server *models.Server, execErr error) {
	var connErr *pool.ConnectionError
	if !errors.As(execErr, &connErr) {
		return
	}

	if err := s.servers.UpdateStatus(ctx, server.ID, models.ServerStatusError); err != nil {
		s.logger.Warn("failed to mark server unreachable", "server_id", server.ID, "error", err)
	}
}

package storage

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/pkg/uuidutil"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type taskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) TaskStore {
	return &taskStore{pool: pool}
}

const taskColumns = `id, name, server_id, task_type, operation, schedule_config, status, timeout_seconds,
	run_count, success_count, error_count, consecutive_failures, config_warning,
	last_run_at, next_run_at, created_at, updated_at`

// Создаем новую задачу; операция валидируется здесь, а не при диспетчеризации
func (s *taskStore) Create(ctx context.Context, task *models.CollectionTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	if task.ID == "" {
		task.ID = uuidutil.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusActive
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = time.Now()

	opData, err := models.MarshalOperation(task.Operation)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	var scheduleData []byte
	if task.Schedule != nil {
		scheduleData, err = json.Marshal(task.Schedule)
		if err != nil {
			return fmt.Errorf("create task: failed to marshal schedule: %w", err)
		}
	}

	query := `INSERT INTO collection_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = s.pool.Exec(ctx, query,
		task.ID,
		task.Name,
		task.ServerID,
		task.TaskType,
		opData,
		scheduleData,
		task.Status,
		task.TimeoutSeconds,
		task.RunCount,
		task.SuccessCount,
		task.ErrorCount,
		task.ConsecutiveFailures,
		task.ConfigWarning,
		task.LastRunAt,
		task.NextRunAt,
		task.CreatedAt,
		task.UpdatedAt,
	)

	return err
}

// Возвращает задачу по ID
func (s *taskStore) GetByID(ctx context.Context, id string) (*models.CollectionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM collection_tasks WHERE id = $1`

	task, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	return task, err
}

// ListDue активные задачи со сроком <= now; никогда не выполнявшиеся — первыми
func (s *taskStore) ListDue(ctx context.Context, now time.Time) ([]*models.CollectionTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM collection_tasks
		WHERE status = $1 AND (next_run_at IS NULL OR next_run_at <= $2)
		ORDER BY next_run_at ASC NULLS FIRST`

	rows, err := s.pool.Query(ctx, query, models.TaskStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.CollectionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list due tasks: failed to scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due tasks: row iteration error: %w", err)
	}

	return tasks, nil
}

// CompareAndSetStatus атомарный переход статуса на уровне строки
func (s *taskStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.TaskStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}

	query := `UPDATE collection_tasks SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	tag, err := s.pool.Exec(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("cas task status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Update сохраняет счетчики, статус и временные метки задачи
func (s *taskStore) Update(ctx context.Context, task *models.CollectionTask) error {
	task.UpdatedAt = time.Now()

	query := `UPDATE collection_tasks
		SET status = $1, run_count = $2, success_count = $3, error_count = $4,
			consecutive_failures = $5, config_warning = $6, last_run_at = $7, next_run_at = $8, updated_at = $9
		WHERE id = $10`

	_, err := s.pool.Exec(ctx, query,
		task.Status,
		task.RunCount,
		task.SuccessCount,
		task.ErrorCount,
		task.ConsecutiveFailures,
		task.ConfigWarning,
		task.LastRunAt,
		task.NextRunAt,
		task.UpdatedAt,
		task.ID,
	)

	return err
}

// Возвращает список задач
func (s *taskStore) List(ctx context.Context, limit, offset int) ([]*models.CollectionTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM collection_tasks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: failed to query tasks (limit=%d, offset=%d): %w", limit, offset, err)
	}
	defer rows.Close()

	var tasks []*models.CollectionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: failed to scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: row iteration error: %w", err)
	}

	return tasks, nil
}

func scanTask(row pgx.Row) (*models.CollectionTask, error) {
	var task models.CollectionTask
	var opData []byte
	var scheduleData []byte

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.ServerID,
		&task.TaskType,
		&opData,
		&scheduleData,
		&task.Status,
		&task.TimeoutSeconds,
		&task.RunCount,
		&task.SuccessCount,
		&task.ErrorCount,
		&task.ConsecutiveFailures,
		&task.ConfigWarning,
		&task.LastRunAt,
		&task.NextRunAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Operation, err = models.ParseOperation(task.TaskType, opData)
	if err != nil {
		return nil, err
	}

	if len(scheduleData) > 0 {
		var schedule models.ScheduleConfig
		if err := json.Unmarshal(scheduleData, &schedule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule config: %w", err)
		}
		task.Schedule = &schedule
	}

	return &task, nil
}

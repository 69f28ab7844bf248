package storage

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/pkg/uuidutil"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type resultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) ResultStore {
	return &resultStore{pool: pool}
}

// Append добавляет запись о выполнении; повтор по execution_id молча игнорируется
func (s *resultStore) Append(ctx context.Context, result *models.CollectionResult) (bool, error) {
	if result.ExecutionID == "" {
		return false, fmt.Errorf("append result: execution id is required")
	}

	if result.ID == "" {
		result.ID = uuidutil.New()
	}
	result.CreatedAt = time.Now()

	var data []byte
	if result.Data != nil {
		var err error
		data, err = json.Marshal(result.Data)
		if err != nil {
			return false, fmt.Errorf("append result: failed to marshal data: %w", err)
		}
	}

	query := `INSERT INTO collection_results (id, task_id, server_id, execution_id, status, result_data, error_message, execution_time, collected_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (execution_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		result.ID,
		result.TaskID,
		result.ServerID,
		result.ExecutionID,
		result.Status,
		data,
		result.ErrorMessage,
		result.ExecutionTime,
		result.CollectedAt,
		result.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("append result: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Возвращает последние результаты задачи
func (s *resultStore) ListByTask(ctx context.Context, taskID string, limit int) ([]*models.CollectionResult, error) {
	query := `SELECT id, task_id, server_id, execution_id, status, result_data, error_message, execution_time, collected_at, created_at
		FROM collection_results
		WHERE task_id = $1
		ORDER BY collected_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: failed to query results for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var results []*models.CollectionResult
	for rows.Next() {
		var result models.CollectionResult
		var data []byte

		err := rows.Scan(
			&result.ID,
			&result.TaskID,
			&result.ServerID,
			&result.ExecutionID,
			&result.Status,
			&data,
			&result.ErrorMessage,
			&result.ExecutionTime,
			&result.CollectedAt,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("list results: failed to scan row: %w", err)
		}

		if len(data) > 0 {
			if err := json.Unmarshal(data, &result.Data); err != nil {
				return nil, fmt.Errorf("list results: failed to unmarshal result data: %w", err)
			}
		}

		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: row iteration error: %w", err)
	}

	return results, nil
}

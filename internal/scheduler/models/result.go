package models

import "time"

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultTimeout ResultStatus = "timeout"
)

// CollectionResult запись об одной попытке выполнения; только добавляется, никогда не изменяется
type CollectionResult struct {
	ID            string                 `json:"id"`
	TaskID        string                 `json:"task_id"`
	ServerID      string                 `json:"server_id"`
	ExecutionID   string                 `json:"execution_id"`
	Status        ResultStatus           `json:"status"`
	Data          map[string]interface{} `json:"data,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	ExecutionTime float64                `json:"execution_time"` // в секундах
	CollectedAt   time.Time              `json:"collected_at"`
	CreatedAt     time.Time              `json:"created_at"`
}

func NewSuccessResult(task *CollectionTask, executionID string, data map[string]interface{}, duration time.Duration, collectedAt time.Time) *CollectionResult {
	return &CollectionResult{
		TaskID:        task.ID,
		ServerID:      task.ServerID,
		ExecutionID:   executionID,
		Status:        ResultSuccess,
		Data:          data,
		ExecutionTime: duration.Seconds(),
		CollectedAt:   collectedAt,
	}
}

func NewErrorResult(task *CollectionTask, executionID string, err error, duration time.Duration, collectedAt time.Time) *CollectionResult {
	return &CollectionResult{
		TaskID:        task.ID,
		ServerID:      task.ServerID,
		ExecutionID:   executionID,
		Status:        ResultFailed,
		ErrorMessage:  err.Error(),
		ExecutionTime: duration.Seconds(),
		CollectedAt:   collectedAt,
	}
}

func NewTimeoutResult(task *CollectionTask, executionID string, duration time.Duration, collectedAt time.Time) *CollectionResult {
	return &CollectionResult{
		TaskID:        task.ID,
		ServerID:      task.ServerID,
		ExecutionID:   executionID,
		Status:        ResultTimeout,
		ErrorMessage:  "execution deadline exceeded",
		ExecutionTime: duration.Seconds(),
		CollectedAt:   collectedAt,
	}
}

package models

import (
	"fmt"
	"time"
)

type TaskType string

const (
	TaskTypeCommand  TaskType = "command"
	TaskTypeAPICall  TaskType = "api_call"
	TaskTypeSNMPGet  TaskType = "snmp_get"
	TaskTypeSNMPWalk TaskType = "snmp_walk"
)

type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusInactive  TaskStatus = "inactive"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// таблица допустимых переходов статуса задачи;
// completed — терминальный, failed возвращается только через активацию оператором
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusActive:    {TaskStatusRunning, TaskStatusInactive},
	TaskStatusRunning:   {TaskStatusActive, TaskStatusCompleted, TaskStatusFailed},
	TaskStatusInactive:  {TaskStatusActive},
	TaskStatusCompleted: {},
	TaskStatusFailed:    {TaskStatusActive},
}

// CanTransition проверяет допустимость перехода статуса
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	for _, next := range taskTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type IntervalType string

const (
	IntervalSeconds IntervalType = "seconds"
	IntervalMinutes IntervalType = "minutes"
	IntervalHours   IntervalType = "hours"
	IntervalDays    IntervalType = "days"
)

// ScheduleConfig конфигурация расписания; неизменяема после привязки к задаче
type ScheduleConfig struct {
	IntervalType  IntervalType `json:"interval_type"`
	IntervalValue int          `json:"interval_value"`
	WorkerGroup   string       `json:"worker_group,omitempty"`
	ExclusionTags []string     `json:"exclusion_tags,omitempty"`
}

// Interval возвращает интервал расписания как Duration
func (c *ScheduleConfig) Interval() (time.Duration, error) {
	if c.IntervalValue <= 0 {
		return 0, fmt.Errorf("invalid interval value: %d", c.IntervalValue)
	}

	value := time.Duration(c.IntervalValue)
	switch c.IntervalType {
	case IntervalSeconds:
		return value * time.Second, nil
	case IntervalMinutes:
		return value * time.Minute, nil
	case IntervalHours:
		return value * time.Hour, nil
	case IntervalDays:
		return value * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval type: %s", c.IntervalType)
	}
}

func (c *ScheduleConfig) Validate() error {
	_, err := c.Interval()
	return err
}

type CollectionTask struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	ServerID            string          `json:"server_id"`
	TaskType            TaskType        `json:"task_type"`
	Operation           Operation       `json:"operation"`
	Schedule            *ScheduleConfig `json:"schedule_config,omitempty"`
	Status              TaskStatus      `json:"status"`
	TimeoutSeconds      int             `json:"timeout_seconds,omitempty"`
	RunCount            int             `json:"run_count"`
	SuccessCount        int             `json:"success_count"`
	ErrorCount          int             `json:"error_count"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	ConfigWarning       string          `json:"config_warning,omitempty"`
	LastRunAt           *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsOneShot задача без расписания выполняется ровно один раз
func (t *CollectionTask) IsOneShot() bool {
	return t.Schedule == nil
}

// Timeout возвращает таймаут выполнения с учетом переопределения на задаче
func (t *CollectionTask) Timeout(def time.Duration) time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return def
}

// WorkerGroup группа воркеров, к которой привязана задача (affinity)
func (t *CollectionTask) WorkerGroup() string {
	if t.Schedule == nil {
		return ""
	}
	return t.Schedule.WorkerGroup
}

// ExclusionTags метки взаимного исключения задачи (anti-affinity)
func (t *CollectionTask) ExclusionTags() []string {
	if t.Schedule == nil {
		return nil
	}
	return t.Schedule.ExclusionTags
}

// Validate проверяет задачу при создании: тип, операция, расписание
func (t *CollectionTask) Validate() error {
	if t.ServerID == "" {
		return fmt.Errorf("server id is required")
	}

	if t.Operation == nil {
		return fmt.Errorf("operation is required")
	}

	if t.Operation.Type() != t.TaskType {
		return fmt.Errorf("operation type %s does not match task type %s", t.Operation.Type(), t.TaskType)
	}

	if err := t.Operation.Validate(); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}

	if t.Schedule != nil {
		if err := t.Schedule.Validate(); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
	}

	return nil
}

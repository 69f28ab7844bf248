package services

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunFromCompletionTime(t *testing.T) {
	clock := NewClockService(nil, testLogger())

	schedule := &models.ScheduleConfig{IntervalType: models.IntervalMinutes, IntervalValue: 5}
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, err := clock.NextRun(schedule, completedAt)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, completedAt.Add(5*time.Minute), *next)
}

func TestNextRunOneShot(t *testing.T) {
	clock := NewClockService(nil, testLogger())

	next, err := clock.NextRun(nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestDueOrdering(t *testing.T) {
	store := storage.NewMemoryStore()
	tasks := store.Tasks()
	clock := NewClockService(tasks, testLogger())
	ctx := context.Background()

	now := time.Now()
	later := now.Add(time.Hour)
	soon := now.Add(-time.Minute)
	sooner := now.Add(-time.Hour)

	mkTask := func(id string, next *time.Time) {
		task := &models.CollectionTask{
			ID:        id,
			Name:      id,
			ServerID:  "srv-1",
			TaskType:  models.TaskTypeCommand,
			Operation: &models.CommandOp{Command: "uptime"},
			Schedule:  &models.ScheduleConfig{IntervalType: models.IntervalMinutes, IntervalValue: 1},
		}
		require.NoError(t, tasks.Create(ctx, task))
		task.NextRunAt = next
		require.NoError(t, tasks.Update(ctx, task))
	}

	mkTask("overdue", &sooner)
	mkTask("due", &soon)
	mkTask("future", &later)
	mkTask("fresh", nil)

	due, err := clock.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 3)

	// никогда не выполнявшиеся первыми, дальше по возрастанию срока
	assert.Equal(t, "fresh", due[0].ID)
	assert.Equal(t, "overdue", due[1].ID)
	assert.Equal(t, "due", due[2].ID)
}

func TestDueSkipsRunningTask(t *testing.T) {
	store := storage.NewMemoryStore()
	tasks := store.Tasks()
	clock := NewClockService(tasks, testLogger())
	ctx := context.Background()

	task := &models.CollectionTask{
		ID:        "busy",
		Name:      "busy",
		ServerID:  "srv-1",
		TaskType:  models.TaskTypeCommand,
		Operation: &models.CommandOp{Command: "uptime"},
		Schedule:  &models.ScheduleConfig{IntervalType: models.IntervalMinutes, IntervalValue: 1},
	}
	require.NoError(t, tasks.Create(ctx, task))

	// срок давно наступил, но задача уже захвачена
	overdue := time.Now().Add(-time.Hour)
	task.NextRunAt = &overdue
	require.NoError(t, tasks.Update(ctx, task))

	claimed, err := tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusActive, models.TaskStatusRunning)
	require.NoError(t, err)
	require.True(t, claimed)

	due, err := clock.Due(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	// после возврата в active задача снова в выборке
	claimed, err = tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusRunning, models.TaskStatusActive)
	require.NoError(t, err)
	require.True(t, claimed)

	due, err = clock.Due(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "busy", due[0].ID)
}

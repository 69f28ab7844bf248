package services

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type aggFixture struct {
	store      *storage.MemoryStore
	tasks      storage.TaskStore
	aggregator *AggregatorService
}

func newAggFixture(t *testing.T, maxFailures int) *aggFixture {
	store := storage.NewMemoryStore()
	tasks := store.Tasks()
	clock := NewClockService(tasks, testLogger())

	return &aggFixture{
		store:      store,
		tasks:      tasks,
		aggregator: NewAggregatorService(tasks, store, store, nil, clock, maxFailures, testLogger()),
	}
}

func (f *aggFixture) createServer(t *testing.T, status models.ServerStatus) *models.Server {
	server := &models.Server{
		ID:           "srv-1",
		Name:         "web-1",
		Host:         "10.0.0.1",
		Port:         22,
		Username:     "ops",
		ProtocolType: models.ProtocolSSH,
		Status:       status,
	}
	require.NoError(t, f.store.Create(context.Background(), server))
	return server
}

func (f *aggFixture) createRunningTask(t *testing.T, schedule *models.ScheduleConfig) *models.CollectionTask {
	task := &models.CollectionTask{
		ServerID:  "srv-1",
		Name:      "collect uptime",
		TaskType:  models.TaskTypeCommand,
		Operation: &models.CommandOp{Command: "uptime"},
		Schedule:  schedule,
	}
	require.NoError(t, f.tasks.Create(context.Background(), task))

	claimed, err := f.tasks.CompareAndSetStatus(context.Background(), task.ID, models.TaskStatusActive, models.TaskStatusRunning)
	require.NoError(t, err)
	require.True(t, claimed)
	task.Status = models.TaskStatusRunning
	return task
}

func recurring() *models.ScheduleConfig {
	return &models.ScheduleConfig{IntervalType: models.IntervalMinutes, IntervalValue: 5}
}

func TestRecordSuccess(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	collectedAt := time.Now()
	result := models.NewSuccessResult(task, "exec-1", map[string]interface{}{"output": "up"}, time.Second, collectedAt)
	require.NoError(t, f.aggregator.Record(ctx, task, result))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusActive, stored.Status)
	assert.Equal(t, 1, stored.RunCount)
	assert.Equal(t, 1, stored.SuccessCount)
	assert.Equal(t, 0, stored.ErrorCount)
	assert.Equal(t, 0, stored.ConsecutiveFailures)
	require.NotNil(t, stored.NextRunAt)
	assert.WithinDuration(t, collectedAt.Add(5*time.Minute), *stored.NextRunAt, time.Second)
	require.NotNil(t, stored.LastRunAt)
}

func TestRecordReplayIgnored(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	result := models.NewSuccessResult(task, "exec-1", nil, time.Second, time.Now())
	require.NoError(t, f.aggregator.Record(ctx, task, result))

	// повтор с тем же execution_id не меняет счетчики
	replayTask, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	replay := models.NewSuccessResult(replayTask, "exec-1", nil, time.Second, time.Now())
	require.NoError(t, f.aggregator.Record(ctx, replayTask, replay))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RunCount)
	assert.Equal(t, 1, stored.SuccessCount)

	results, err := f.store.ListByTask(ctx, task.ID, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRecordFailureCounters(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	result := models.NewErrorResult(task, "exec-1", assert.AnError, time.Second, time.Now())
	require.NoError(t, f.aggregator.Record(ctx, task, result))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusActive, stored.Status)
	assert.Equal(t, 1, stored.RunCount)
	assert.Equal(t, 1, stored.ErrorCount)
	assert.Equal(t, 1, stored.ConsecutiveFailures)
	assert.NotNil(t, stored.NextRunAt)
}

func TestRecordTimeoutCountsAsError(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	result := models.NewTimeoutResult(task, "exec-1", 30*time.Second, time.Now())
	require.NoError(t, f.aggregator.Record(ctx, task, result))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ErrorCount)
	assert.Equal(t, 1, stored.ConsecutiveFailures)

	results, err := f.store.ListByTask(ctx, task.ID, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ResultTimeout, results[0].Status)
}

func TestConsecutiveFailuresDisableTask(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stored, err := f.tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)

		if stored.Status == models.TaskStatusActive {
			claimed, err := f.tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusActive, models.TaskStatusRunning)
			require.NoError(t, err)
			require.True(t, claimed)
			stored.Status = models.TaskStatusRunning
		}

		result := models.NewErrorResult(stored, fmt.Sprintf("exec-%d", i), assert.AnError, time.Second, time.Now())
		require.NoError(t, f.aggregator.Record(ctx, stored, result))
	}

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.ConsecutiveFailures)
	assert.Nil(t, stored.NextRunAt)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	require.NoError(t, f.aggregator.Record(ctx, task,
		models.NewErrorResult(task, "exec-1", assert.AnError, time.Second, time.Now())))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	claimed, err := f.tasks.CompareAndSetStatus(ctx, task.ID, models.TaskStatusActive, models.TaskStatusRunning)
	require.NoError(t, err)
	require.True(t, claimed)
	stored.Status = models.TaskStatusRunning

	require.NoError(t, f.aggregator.Record(ctx, stored,
		models.NewSuccessResult(stored, "exec-2", nil, time.Second, time.Now())))

	final, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.ConsecutiveFailures)
	assert.Equal(t, 2, final.RunCount)
	assert.Equal(t, 1, final.SuccessCount)
	assert.Equal(t, 1, final.ErrorCount)
}

func TestOneShotTaskCompletes(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, nil)
	ctx := context.Background()

	require.NoError(t, f.aggregator.Record(ctx, task,
		models.NewSuccessResult(task, "exec-1", nil, time.Second, time.Now())))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextRunAt)
}

func TestOneShotTaskFails(t *testing.T) {
	f := newAggFixture(t, 3)
	f.createServer(t, models.ServerStatusActive)
	task := f.createRunningTask(t, nil)
	ctx := context.Background()

	require.NoError(t, f.aggregator.Record(ctx, task,
		models.NewErrorResult(task, "exec-1", assert.AnError, time.Second, time.Now())))

	stored, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
}

func TestSuccessRestoresServerStatus(t *testing.T) {
	f := newAggFixture(t, 3)
	server := f.createServer(t, models.ServerStatusError)
	task := f.createRunningTask(t, recurring())
	ctx := context.Background()

	require.NoError(t, f.aggregator.Record(ctx, task,
		models.NewSuccessResult(task, "exec-1", nil, time.Second, time.Now())))

	stored, err := f.store.GetByID(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ServerStatusActive, stored.Status)
}

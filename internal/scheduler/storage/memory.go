package storage

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/pkg/uuidutil"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore хранилище в памяти; используется в тестах и однопроцессном режиме.
// Реализует ServerStore, TaskStore, ResultStore и SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	servers  map[string]*models.Server
	tasks    map[string]*models.CollectionTask
	results  []*models.CollectionResult
	seen     map[string]bool // execution_id -> записан
	sessions map[string]*models.ConnectionSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		servers:  make(map[string]*models.Server),
		tasks:    make(map[string]*models.CollectionTask),
		seen:     make(map[string]bool),
		sessions: make(map[string]*models.ConnectionSession),
	}
}

// --- ServerStore ---

func (m *MemoryStore) Create(ctx context.Context, server *models.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if server.ID == "" {
		server.ID = uuidutil.New()
	}
	server.CreatedAt = time.Now()
	server.UpdatedAt = time.Now()

	clone := *server
	m.servers[server.ID] = &clone
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*models.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	server, ok := m.servers[id]
	if !ok {
		return nil, nil
	}
	clone := *server
	return &clone, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.ServerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	server, ok := m.servers[id]
	if !ok {
		return fmt.Errorf("server not found: %s", id)
	}
	server.Status = status
	server.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]*models.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var servers []*models.Server
	for _, server := range m.servers {
		clone := *server
		servers = append(servers, &clone)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].CreatedAt.After(servers[j].CreatedAt) })
	return paginate(servers, limit, offset), nil
}

// --- TaskStore ---

func (m *MemoryStore) CreateTask(ctx context.Context, task *models.CollectionTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID == "" {
		task.ID = uuidutil.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusActive
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = time.Now()

	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *MemoryStore) GetTaskByID(ctx context.Context, id string) (*models.CollectionTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	clone := *task
	return &clone, nil
}

func (m *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]*models.CollectionTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*models.CollectionTask
	for _, task := range m.tasks {
		if task.Status != models.TaskStatusActive {
			continue
		}
		if task.NextRunAt != nil && task.NextRunAt.After(now) {
			continue
		}
		clone := *task
		due = append(due, &clone)
	}

	// никогда не выполнявшиеся задачи идут первыми, дальше по возрастанию срока
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].NextRunAt, due[j].NextRunAt
		if a == nil && b == nil {
			return due[i].ID < due[j].ID
		}
		if a == nil {
			return true
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})

	return due, nil
}

func (m *MemoryStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.TaskStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return false, fmt.Errorf("task not found: %s", id)
	}
	if task.Status != from {
		return false, nil
	}

	task.Status = to
	task.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) UpdateTask(ctx context.Context, task *models.CollectionTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("task not found: %s", task.ID)
	}

	task.UpdatedAt = time.Now()
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *MemoryStore) ListTasks(ctx context.Context, limit, offset int) ([]*models.CollectionTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tasks []*models.CollectionTask
	for _, task := range m.tasks {
		clone := *task
		tasks = append(tasks, &clone)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return paginate(tasks, limit, offset), nil
}

// --- ResultStore ---

func (m *MemoryStore) Append(ctx context.Context, result *models.CollectionResult) (bool, error) {
	if result.ExecutionID == "" {
		return false, fmt.Errorf("append result: execution id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[result.ExecutionID] {
		return false, nil
	}

	if result.ID == "" {
		result.ID = uuidutil.New()
	}
	result.CreatedAt = time.Now()

	clone := *result
	m.results = append(m.results, &clone)
	m.seen[result.ExecutionID] = true
	return true, nil
}

func (m *MemoryStore) ListByTask(ctx context.Context, taskID string, limit int) ([]*models.CollectionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*models.CollectionResult
	for _, result := range m.results {
		if result.TaskID == taskID {
			clone := *result
			results = append(results, &clone)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CollectedAt.After(results[j].CollectedAt) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- SessionStore ---

func (m *MemoryStore) Upsert(ctx context.Context, session *models.ConnectionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *session
	m.sessions[session.SessionID] = &clone
	return nil
}

func (m *MemoryStore) ListConnected(ctx context.Context) ([]*models.ConnectionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*models.ConnectionSession
	for _, session := range m.sessions {
		if session.Status == models.ConnectionConnected {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ConnectedAt.After(sessions[j].ConnectedAt) })
	return sessions, nil
}

func paginate[T any](items []*T, limit, offset int) []*T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// memoryTasks адаптер, выставляющий задачи MemoryStore как TaskStore
// (имена методов Create/GetByID заняты серверной стороной)
type memoryTasks struct {
	store *MemoryStore
}

func (m *MemoryStore) Tasks() TaskStore {
	return &memoryTasks{store: m}
}

func (t *memoryTasks) Create(ctx context.Context, task *models.CollectionTask) error {
	return t.store.CreateTask(ctx, task)
}

func (t *memoryTasks) GetByID(ctx context.Context, id string) (*models.CollectionTask, error) {
	return t.store.GetTaskByID(ctx, id)
}

func (t *memoryTasks) ListDue(ctx context.Context, now time.Time) ([]*models.CollectionTask, error) {
	return t.store.ListDue(ctx, now)
}

func (t *memoryTasks) CompareAndSetStatus(ctx context.Context, id string, from, to models.TaskStatus) (bool, error) {
	return t.store.CompareAndSetStatus(ctx, id, from, to)
}

func (t *memoryTasks) Update(ctx context.Context, task *models.CollectionTask) error {
	return t.store.UpdateTask(ctx, task)
}

func (t *memoryTasks) List(ctx context.Context, limit, offset int) ([]*models.CollectionTask, error) {
	return t.store.ListTasks(ctx, limit, offset)
}

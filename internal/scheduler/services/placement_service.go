package services

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// workerSlot состояние воркера в реестре: дескриптор и метки
// задач, которые он выполняет прямо сейчас
type workerSlot struct {
	desc    models.WorkerDescriptor
	running map[string][]string // task id -> exclusion tags
}

// PlacementService реестр живых воркеров и выбор исполнителя.
// Affinity сужает кандидатов до группы, anti-affinity исключает
// воркеров с пересекающимися метками, из оставшихся берется
// наименее загруженный.
type PlacementService struct {
	mu       sync.Mutex
	slots    map[string]*workerSlot
	registry storage.WorkerRegistryStore
	liveness time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewPlacementService(registry storage.WorkerRegistryStore, heartbeat, liveness time.Duration, logger *slog.Logger) *PlacementService {
	return &PlacementService{
		slots:    make(map[string]*workerSlot),
		registry: registry,
		liveness: liveness,
		interval: heartbeat,
		logger:   logger,
	}
}

// Register добавляет воркера в реестр с текущим heartbeat
func (s *PlacementService) Register(desc models.WorkerDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc.LastHeartbeat = time.Now()
	s.slots[desc.ID] = &workerSlot{
		desc:    desc,
		running: make(map[string][]string),
	}
	s.logger.Info("worker registered",
		"worker", desc.ID,
		"protocol", desc.ProtocolType,
		"group", desc.Group,
	)
}

func (s *PlacementService) Deregister(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, workerID)
}

// Heartbeat продлевает жизнь воркера
func (s *PlacementService) Heartbeat(workerID string) {
	s.HeartbeatAt(workerID, time.Now())
}

func (s *PlacementService) HeartbeatAt(workerID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.slots[workerID]; ok {
		slot.desc.LastHeartbeat = at
	}
}

// Select выбирает воркера под задачу и резервирует слот (in-flight
// увеличивается сразу, под той же блокировкой). Привязка к группе
// жесткая: задача с группой никогда не размещается вне ее, при
// отсутствии живых воркеров группы возвращается ErrAffinityUnsatisfiable.
func (s *PlacementService) Select(protocol models.ProtocolType, group string, tags []string, taskID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.aliveLocked(protocol, time.Now())
	if len(alive) == 0 {
		return "", ErrNoEligibleWorker
	}

	candidates := alive
	if group != "" {
		grouped := make([]*workerSlot, 0, len(alive))
		for _, slot := range alive {
			if slot.desc.Group == group {
				grouped = append(grouped, slot)
			}
		}
		if len(grouped) == 0 {
			return "", ErrAffinityUnsatisfiable
		}
		candidates = grouped
	}

	eligible := make([]*workerSlot, 0, len(candidates))
	for _, slot := range candidates {
		if !slot.conflicts(tags) {
			eligible = append(eligible, slot)
		}
	}
	if len(eligible) == 0 {
		return "", ErrNoEligibleWorker
	}

	// наименее загруженный, при равенстве — младший идентификатор
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].desc.InFlight != eligible[j].desc.InFlight {
			return eligible[i].desc.InFlight < eligible[j].desc.InFlight
		}
		return eligible[i].desc.ID < eligible[j].desc.ID
	})

	chosen := eligible[0]
	chosen.desc.InFlight++
	chosen.running[taskID] = append([]string(nil), tags...)

	return chosen.desc.ID, nil
}

// Release освобождает слот воркера после завершения задачи
func (s *PlacementService) Release(workerID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[workerID]
	if !ok {
		return
	}

	if _, running := slot.running[taskID]; running {
		delete(slot.running, taskID)
		if slot.desc.InFlight > 0 {
			slot.desc.InFlight--
		}
	}
}

// EvictStale убирает воркеров без heartbeat в пределах окна живости
func (s *PlacementService) EvictStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, slot := range s.slots {
		if now.Sub(slot.desc.LastHeartbeat) > s.liveness {
			delete(s.slots, id)
			evicted++
			s.logger.Warn("stale worker evicted", "worker", id)
		}
	}
	return evicted
}

// Workers снимок реестра для операторского API
func (s *PlacementService) Workers() []models.WorkerDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.WorkerDescriptor, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, slot.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run периодически продлевает heartbeat-ы локальных воркеров,
// персистит их и выселяет умолкших
func (s *PlacementService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *PlacementService) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	descs := make([]models.WorkerDescriptor, 0, len(s.slots))
	for _, slot := range s.slots {
		slot.desc.LastHeartbeat = now
		descs = append(descs, slot.desc)
	}
	s.mu.Unlock()

	if s.registry == nil {
		return
	}
	for i := range descs {
		if err := s.registry.UpsertHeartbeat(ctx, &descs[i], s.liveness); err != nil {
			s.logger.Warn("failed to persist worker heartbeat",
				"worker", descs[i].ID,
				"error", err,
			)
		}
	}
}

func (s *PlacementService) aliveLocked(protocol models.ProtocolType, now time.Time) []*workerSlot {
	alive := make([]*workerSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		if slot.desc.ProtocolType != protocol {
			continue
		}
		if now.Sub(slot.desc.LastHeartbeat) > s.liveness {
			continue
		}
		alive = append(alive, slot)
	}
	return alive
}

// conflicts проверяет пересечение меток с задачами в работе
func (w *workerSlot) conflicts(tags []string) bool {
	if len(tags) == 0 {
		return false
	}
	for _, runningTags := range w.running {
		for _, rt := range runningTags {
			for _, t := range tags {
				if rt == t {
					return true
				}
			}
		}
	}
	return false
}

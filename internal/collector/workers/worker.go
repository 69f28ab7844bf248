package workers

import (
	"NetCollect/internal/collector/pool"
	"NetCollect/internal/config"
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"NetCollect/pkg/uuidutil"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker протокольный сборщик: выполняет одну операцию против одного
// сервера через пул-сессию, в пределах таймаута
type Worker interface {
	ID() string
	Protocol() models.ProtocolType
	Group() string
	Descriptor() models.WorkerDescriptor
	Execute(ctx context.Context, server *models.Server, op models.Operation, timeout time.Duration) (map[string]interface{}, error)
	Pool() *pool.Pool
	Close() error
}

type baseWorker struct {
	id       string
	protocol models.ProtocolType
	group    string
	pool     *pool.Pool
	logger   *slog.Logger
}

func newBaseWorker(protocol models.ProtocolType, group string, idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) baseWorker {
	id := fmt.Sprintf("%s-%s", protocol, uuidutil.Short(uuidutil.New()))
	return baseWorker{
		id:       id,
		protocol: protocol,
		group:    group,
		pool:     pool.New(idleTTL, sessions, logger.With("worker", id)),
		logger:   logger.With("worker", id),
	}
}

func (w *baseWorker) ID() string                    { return w.id }
func (w *baseWorker) Protocol() models.ProtocolType { return w.protocol }
func (w *baseWorker) Group() string                 { return w.group }
func (w *baseWorker) Pool() *pool.Pool              { return w.pool }

func (w *baseWorker) Descriptor() models.WorkerDescriptor {
	return models.WorkerDescriptor{
		ID:           w.id,
		ProtocolType: w.protocol,
		Group:        w.group,
	}
}

func (w *baseWorker) Close() error {
	w.pool.CloseAll()
	return nil
}

// runBounded выполняет операцию в отдельной горутине; по истечении срока
// вызывающий получает ErrCommandTimeout, не дожидаясь зависшего вызова
func runBounded(ctx context.Context, run func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type outcome struct {
		data map[string]interface{}
		err  error
	}

	done := make(chan outcome, 1)
	go func() {
		data, err := run()
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ErrCommandTimeout
	case o := <-done:
		return o.data, o.err
	}
}

// Factory набор воркеров по одному на протокол, каждый со своим пулом
type Factory struct {
	mu      sync.RWMutex
	workers map[models.ProtocolType]Worker
	sweep   time.Duration
}

func NewFactory(cfg config.PoolConfig, group string, sessions storage.SessionStore, logger *slog.Logger) *Factory {
	workers := map[models.ProtocolType]Worker{
		models.ProtocolSSH:        NewSSHWorker(group, cfg.IdleTTL, sessions, logger),
		models.ProtocolNetmikoSSH: NewNetmikoWorker(group, cfg.IdleTTL, sessions, logger),
		models.ProtocolGoSSH:      NewNativeSSHWorker(group, cfg.IdleTTL, sessions, logger),
		models.ProtocolAPI:        NewAPIWorker(group, cfg.IdleTTL, sessions, logger),
		models.ProtocolSNMP:       NewSNMPWorker(group, cfg.IdleTTL, sessions, logger),
	}

	return &Factory{workers: workers, sweep: cfg.SweepInterval}
}

func (f *Factory) GetWorker(protocol models.ProtocolType) (Worker, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	worker, ok := f.workers[protocol]
	if !ok {
		return nil, fmt.Errorf("unknown protocol type: %s", protocol)
	}
	return worker, nil
}

func (f *Factory) All() []Worker {
	f.mu.RLock()
	defer f.mu.RUnlock()

	all := make([]Worker, 0, len(f.workers))
	for _, w := range f.workers {
		all = append(all, w)
	}
	return all
}

// Run запускает фоновые чистки пулов всех воркеров до отмены контекста
func (f *Factory) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range f.All() {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			w.Pool().Run(ctx, f.sweep)
		}(w)
	}
	wg.Wait()
}

func (f *Factory) Close() error {
	for _, w := range f.All() {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

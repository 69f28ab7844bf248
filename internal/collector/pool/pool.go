package pool

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"NetCollect/pkg/uuidutil"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Conn живое протокольное соединение, которым владеет пул
type Conn interface {
	Close() error
}

// DialFunc устанавливает новое соединение (протокольный handshake)
type DialFunc func(ctx context.Context) (Conn, error)

// ConnectionError ошибка установки соединения; сессия не создана
type ConnectionError struct {
	Identity string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed for %s: %v", e.Identity, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Session пул-сессия: одно живое соединение на идентичность
type Session struct {
	ID             string
	ServerID       string
	Protocol       models.ProtocolType
	Conn           Conn
	ConnectedAt    time.Time
	LastActivityAt time.Time
}

// Meta атрибуты сервера, к которому относится сессия
type Meta struct {
	ServerID string
	Protocol models.ProtocolType
}

// entry слот одной идентичности; lock сериализует и создание,
// и выполнение — общая сессия не обслуживает два запроса сразу
type entry struct {
	lock    chan struct{}
	session *Session
}

// Pool реестр сессий воркера с блокировкой на уровне идентичности
type Pool struct {
	mu       sync.Mutex
	entries  map[string]*entry
	idleTTL  time.Duration
	sessions storage.SessionStore
	logger   *slog.Logger
}

// New создает пул; sessions может быть nil, тогда состояние сессий не персистится
func New(idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		entries:  make(map[string]*entry),
		idleTTL:  idleTTL,
		sessions: sessions,
		logger:   logger,
	}
}

func (p *Pool) entryFor(identity string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[identity]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		p.entries[identity] = e
	}
	return e
}

// Acquire возвращает сессию с захваченным слотом идентичности.
// Конкурирующие вызовы по одной идентичности сериализуются: первый
// устанавливает соединение, остальные ждут и переиспользуют его.
// До вызова Release или Discard слот остается за вызывающим.
func (p *Pool) Acquire(ctx context.Context, identity string, meta Meta, dial DialFunc) (*Session, error) {
	var e *entry
	for {
		e = p.entryFor(identity)

		select {
		case e.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// слот мог быть удален чисткой, пока мы ждали; берем свежий
		p.mu.Lock()
		current := p.entries[identity] == e
		p.mu.Unlock()
		if current {
			break
		}
		<-e.lock
	}

	if e.session != nil {
		return e.session, nil
	}

	conn, err := dial(ctx)
	if err != nil {
		// идентификатор выводится из идентичности: повторные сбои
		// одного хоста обновляют одну запись, а не плодят новые
		p.persist(&models.ConnectionSession{
			SessionID:      uuidutil.Deterministic("dial-error:" + identity),
			ServerID:       meta.ServerID,
			ProtocolType:   meta.Protocol,
			Status:         models.ConnectionError,
			ConnectedAt:    time.Now(),
			LastActivityAt: time.Now(),
			ErrorMessage:   err.Error(),
		})
		<-e.lock
		return nil, &ConnectionError{Identity: identity, Err: err}
	}

	now := time.Now()
	e.session = &Session{
		ID:             uuidutil.New(),
		ServerID:       meta.ServerID,
		Protocol:       meta.Protocol,
		Conn:           conn,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	p.logger.Debug("session established",
		"identity", identity,
		"session_id", uuidutil.Short(e.session.ID),
	)
	p.persistSession(e.session, models.ConnectionConnected, "")

	return e.session, nil
}

// Release возвращает слот после успешного выполнения; сессия остается в пуле
func (p *Pool) Release(identity string) {
	p.mu.Lock()
	e, ok := p.entries[identity]
	p.mu.Unlock()
	if !ok {
		return
	}

	if e.session != nil {
		e.session.LastActivityAt = time.Now()
		p.persistSession(e.session, models.ConnectionConnected, "")
	}

	select {
	case <-e.lock:
	default:
	}
}

// Discard закрывает и выбрасывает сессию, слот освобождается.
// Вызывается держателем при таймауте или протокольной ошибке,
// чтобы отравленная сессия не была переиспользована.
func (p *Pool) Discard(identity string, reason string) {
	p.mu.Lock()
	e, ok := p.entries[identity]
	p.mu.Unlock()
	if !ok {
		return
	}

	if e.session != nil {
		if err := e.session.Conn.Close(); err != nil {
			p.logger.Warn("failed to close discarded session",
				"identity", identity,
				"error", err,
			)
		}
		p.persistSession(e.session, models.ConnectionError, reason)
		p.logger.Info("session discarded",
			"identity", identity,
			"session_id", uuidutil.Short(e.session.ID),
			"reason", reason,
		)
		e.session = nil
	}

	select {
	case <-e.lock:
	default:
	}
}

// Sweep закрывает простаивающие сессии; занятые слоты пропускаются
func (p *Pool) Sweep(now time.Time) int {
	p.mu.Lock()
	identities := make([]string, 0, len(p.entries))
	for identity := range p.entries {
		identities = append(identities, identity)
	}
	p.mu.Unlock()

	evicted := 0
	for _, identity := range identities {
		p.mu.Lock()
		e, ok := p.entries[identity]
		p.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case e.lock <- struct{}{}:
		default:
			continue // сессия выполняет операцию
		}

		if e.session != nil && now.Sub(e.session.LastActivityAt) > p.idleTTL {
			if err := e.session.Conn.Close(); err != nil {
				p.logger.Warn("failed to close idle session", "identity", identity, "error", err)
			}
			p.persistSession(e.session, models.ConnectionDisconnected, "idle ttl expired")
			p.logger.Debug("idle session evicted", "identity", identity)
			e.session = nil
			evicted++
		}

		if e.session == nil {
			p.mu.Lock()
			delete(p.entries, identity)
			p.mu.Unlock()
		}

		<-e.lock
	}

	return evicted
}

// Run периодическая чистка пула до отмены контекста
func (p *Pool) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.CloseAll()
			return
		case now := <-ticker.C:
			p.Sweep(now)
		}
	}
}

// CloseAll закрывает все сессии при остановке воркера
func (p *Pool) CloseAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	for identity, e := range entries {
		select {
		case e.lock <- struct{}{}:
		default:
		}
		if e.session != nil {
			if err := e.session.Conn.Close(); err != nil {
				p.logger.Warn("failed to close session on shutdown", "identity", identity, "error", err)
			}
			p.persistSession(e.session, models.ConnectionDisconnected, "pool closed")
			e.session = nil
		}
	}
}

// Len количество живых сессий
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.entries {
		if e.session != nil {
			n++
		}
	}
	return n
}

func (p *Pool) persistSession(s *Session, status models.ConnectionStatus, errMsg string) {
	p.persist(&models.ConnectionSession{
		SessionID:      s.ID,
		ServerID:       s.ServerID,
		ProtocolType:   s.Protocol,
		Status:         status,
		ConnectedAt:    s.ConnectedAt,
		LastActivityAt: s.LastActivityAt,
		ErrorMessage:   errMsg,
	})
}

func (p *Pool) persist(session *models.ConnectionSession) {
	if p.sessions == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.sessions.Upsert(ctx, session); err != nil {
		p.logger.Warn("failed to persist session state",
			"session_id", uuidutil.Short(session.SessionID),
			"error", err,
		)
	}
}

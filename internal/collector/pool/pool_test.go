package pool

import (
	"NetCollect/internal/scheduler/models"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func countingDial(dials *atomic.Int32) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		return &fakeConn{}, nil
	}
}

func testMeta() Meta {
	return Meta{ServerID: "srv-1", Protocol: models.ProtocolSSH}
}

func TestAcquireReusesSession(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	sess1, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)
	p.Release("h:22:u:ssh")

	sess2, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)
	p.Release("h:22:u:ssh")

	assert.Equal(t, sess1.ID, sess2.ID)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, 1, p.Len())
}

func TestConcurrentAcquireSingleDial(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	const goroutines = 10
	var wg sync.WaitGroup
	ids := make(chan string, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
			if !assert.NoError(t, err) {
				return
			}
			ids <- sess.ID
			p.Release("h:22:u:ssh")
		}()
	}
	wg.Wait()
	close(ids)

	first := ""
	for id := range ids {
		if first == "" {
			first = id
		}
		assert.Equal(t, first, id)
	}
	assert.Equal(t, int32(1), dials.Load())
}

func TestAcquireCancelledWhileHeld(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	_, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)
	// слот удерживается, второй вызов должен прерваться по контексту

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx, "h:22:u:ssh", testMeta(), countingDial(&dials))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release("h:22:u:ssh")
}

func TestDialFailureReturnsConnectionError(t *testing.T) {
	p := New(time.Minute, nil, nil)

	failing := func(ctx context.Context) (Conn, error) {
		return nil, assert.AnError
	}

	_, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), failing)
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "h:22:u:ssh", connErr.Identity)
	assert.Equal(t, 0, p.Len())

	// слот освобожден, повторная попытка возможна
	var dials atomic.Int32
	_, err = p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)
	p.Release("h:22:u:ssh")
}

type recordingSessionStore struct {
	mu       sync.Mutex
	upserted []*models.ConnectionSession
}

func (s *recordingSessionStore) Upsert(ctx context.Context, session *models.ConnectionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, session)
	return nil
}

func (s *recordingSessionStore) ListConnected(ctx context.Context) ([]*models.ConnectionSession, error) {
	return nil, nil
}

func TestDialFailuresShareSessionRecord(t *testing.T) {
	store := &recordingSessionStore{}
	p := New(time.Minute, store, nil)

	failing := func(ctx context.Context) (Conn, error) {
		return nil, assert.AnError
	}

	for i := 0; i < 2; i++ {
		_, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), failing)
		require.Error(t, err)
	}

	// повторные сбои одной идентичности обновляют одну запись
	require.Len(t, store.upserted, 2)
	assert.Equal(t, store.upserted[0].SessionID, store.upserted[1].SessionID)
	assert.Equal(t, models.ConnectionError, store.upserted[0].Status)

	// запись сбоя другой идентичности отдельная
	_, err := p.Acquire(context.Background(), "other:22:u:ssh", testMeta(), failing)
	require.Error(t, err)
	require.Len(t, store.upserted, 3)
	assert.NotEqual(t, store.upserted[0].SessionID, store.upserted[2].SessionID)
}

func TestDiscardClosesSession(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	sess, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)

	conn := sess.Conn.(*fakeConn)
	p.Discard("h:22:u:ssh", "command timeout")

	assert.True(t, conn.closed.Load())
	assert.Equal(t, 0, p.Len())

	// следующий Acquire устанавливает новое соединение
	sess2, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, sess2.ID)
	assert.Equal(t, int32(2), dials.Load())
	p.Release("h:22:u:ssh")
}

func TestSweepEvictsIdle(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	sess, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)
	p.Release("h:22:u:ssh")

	conn := sess.Conn.(*fakeConn)

	// до истечения TTL сессия остается
	assert.Equal(t, 0, p.Sweep(time.Now()))
	assert.Equal(t, 1, p.Len())

	evicted := p.Sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, evicted)
	assert.True(t, conn.closed.Load())
	assert.Equal(t, 0, p.Len())
}

func TestSweepSkipsHeldSession(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	sess, err := p.Acquire(context.Background(), "h:22:u:ssh", testMeta(), countingDial(&dials))
	require.NoError(t, err)

	// слот занят выполняющейся операцией
	evicted := p.Sweep(time.Now().Add(time.Hour))
	assert.Equal(t, 0, evicted)
	assert.False(t, sess.Conn.(*fakeConn).closed.Load())

	p.Release("h:22:u:ssh")
}

func TestCloseAll(t *testing.T) {
	p := New(time.Minute, nil, nil)
	var dials atomic.Int32

	conns := make([]*fakeConn, 0, 3)
	for _, identity := range []string{"a:22:u:ssh", "b:22:u:ssh", "c:22:u:ssh"} {
		sess, err := p.Acquire(context.Background(), identity, testMeta(), countingDial(&dials))
		require.NoError(t, err)
		conns = append(conns, sess.Conn.(*fakeConn))
		p.Release(identity)
	}

	p.CloseAll()

	for _, conn := range conns {
		assert.True(t, conn.closed.Load())
	}
	assert.Equal(t, 0, p.Len())
}

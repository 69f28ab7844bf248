package services

import (
	"NetCollect/internal/scheduler/models"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPlacement() *PlacementService {
	return NewPlacementService(nil, 15*time.Second, time.Minute, testLogger())
}

func register(p *PlacementService, id string, protocol models.ProtocolType, group string) {
	p.Register(models.WorkerDescriptor{ID: id, ProtocolType: protocol, Group: group})
}

func TestSelectLeastLoaded(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-a", models.ProtocolSSH, "")
	register(p, "ssh-b", models.ProtocolSSH, "")

	// при равной загрузке побеждает младший идентификатор
	id, err := p.Select(models.ProtocolSSH, "", nil, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "ssh-a", id)

	id, err = p.Select(models.ProtocolSSH, "", nil, "task-2")
	require.NoError(t, err)
	assert.Equal(t, "ssh-b", id)

	// после освобождения ssh-a снова наименее загружен
	p.Release("ssh-a", "task-1")
	id, err = p.Select(models.ProtocolSSH, "", nil, "task-3")
	require.NoError(t, err)
	assert.Equal(t, "ssh-a", id)
}

func TestSelectNoWorkers(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-a", models.ProtocolSSH, "")

	_, err := p.Select(models.ProtocolSNMP, "", nil, "task-1")
	assert.ErrorIs(t, err, ErrNoEligibleWorker)
}

func TestSelectAffinity(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-a", models.ProtocolSSH, "dc-east")
	register(p, "ssh-b", models.ProtocolSSH, "dc-west")

	id, err := p.Select(models.ProtocolSSH, "dc-west", nil, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "ssh-b", id)
}

func TestSelectAffinityUnsatisfiable(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-east", models.ProtocolSSH, "dc-east")

	// привязка жесткая: вне группы задача не размещается никогда
	id, err := p.Select(models.ProtocolSSH, "dc-west", nil, "task-1")
	assert.ErrorIs(t, err, ErrAffinityUnsatisfiable)
	assert.Empty(t, id)

	// слот чужого воркера не зарезервирован
	workers := p.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, 0, workers[0].InFlight)
}

func TestSelectAntiAffinity(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-a", models.ProtocolSSH, "")

	id, err := p.Select(models.ProtocolSSH, "", []string{"backup"}, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "ssh-a", id)

	// вторая задача с той же меткой не размещается на занятом воркере
	_, err = p.Select(models.ProtocolSSH, "", []string{"backup"}, "task-2")
	assert.ErrorIs(t, err, ErrNoEligibleWorker)

	// задача без пересечения меток проходит
	id, err = p.Select(models.ProtocolSSH, "", []string{"report"}, "task-3")
	require.NoError(t, err)
	assert.Equal(t, "ssh-a", id)

	// после завершения первой метка освобождается
	p.Release("ssh-a", "task-1")
	id, err = p.Select(models.ProtocolSSH, "", []string{"backup"}, "task-4")
	require.NoError(t, err)
	assert.Equal(t, "ssh-a", id)
}

func TestEvictStale(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-a", models.ProtocolSSH, "")
	register(p, "ssh-b", models.ProtocolSSH, "")

	p.HeartbeatAt("ssh-a", time.Now().Add(-2*time.Minute))

	evicted := p.EvictStale(time.Now())
	assert.Equal(t, 1, evicted)

	workers := p.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, "ssh-b", workers[0].ID)
}

func TestStaleWorkerNotSelected(t *testing.T) {
	p := newTestPlacement()
	register(p, "ssh-a", models.ProtocolSSH, "")

	p.HeartbeatAt("ssh-a", time.Now().Add(-2*time.Minute))

	_, err := p.Select(models.ProtocolSSH, "", nil, "task-1")
	assert.ErrorIs(t, err, ErrNoEligibleWorker)

	// heartbeat возвращает воркера в строй
	p.Heartbeat("ssh-a")
	_, err = p.Select(models.ProtocolSSH, "", nil, "task-2")
	assert.NoError(t, err)
}

func TestReleaseUnknownWorker(t *testing.T) {
	p := newTestPlacement()
	// освобождение несуществующего воркера не паникует
	p.Release("ghost", "task-1")
}

package workers

import (
	"NetCollect/internal/scheduler/models"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apiServer() *models.Server {
	return &models.Server{
		ID:           "srv-api",
		Name:         "api-1",
		Host:         "127.0.0.1",
		Port:         443,
		ProtocolType: models.ProtocolAPI,
		Status:       models.ServerStatusActive,
	}
}

func TestAPIWorkerExecute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cpu": 42, "mem": 17}`))
	}))
	defer backend.Close()

	w := NewAPIWorker("", time.Minute, nil, testLogger())
	defer w.Close()

	op := &models.APICallOp{
		URL:     backend.URL,
		Method:  "GET",
		Headers: map[string]string{"Authorization": "token"},
	}

	data, err := w.Execute(context.Background(), apiServer(), op, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 200, data["status_code"])
	assert.Equal(t, backend.URL, data["url"])

	body, ok := data["body"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), body["cpu"])
}

func TestAPIWorkerNonJSONBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text"))
	}))
	defer backend.Close()

	w := NewAPIWorker("", time.Minute, nil, testLogger())
	defer w.Close()

	data, err := w.Execute(context.Background(), apiServer(), &models.APICallOp{URL: backend.URL}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "plain text", data["body"])
}

func TestAPIWorkerTimeout(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer backend.Close()
	defer close(release)

	w := NewAPIWorker("", time.Minute, nil, testLogger())
	defer w.Close()

	start := time.Now()
	_, err := w.Execute(context.Background(), apiServer(), &models.APICallOp{URL: backend.URL}, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrCommandTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// отравленная сессия выброшена из пула
	assert.Equal(t, 0, w.Pool().Len())
}

func TestAPIWorkerTLSModeSplitsSessions(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	w := NewAPIWorker("", time.Minute, nil, testLogger())
	defer w.Close()

	srv := apiServer()

	_, err := w.Execute(context.Background(), srv, &models.APICallOp{URL: backend.URL, VerifyTLS: true}, 5*time.Second)
	require.NoError(t, err)

	// insecure-запрос не должен переиспользовать строгий транспорт
	_, err = w.Execute(context.Background(), srv, &models.APICallOp{URL: backend.URL, VerifyTLS: false}, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, w.Pool().Len())
}

func TestAPIWorkerWrongOperation(t *testing.T) {
	w := NewAPIWorker("", time.Minute, nil, testLogger())
	defer w.Close()

	_, err := w.Execute(context.Background(), apiServer(), &models.CommandOp{Command: "uptime"}, time.Second)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestAPIWorkerConnectionRefused(t *testing.T) {
	w := NewAPIWorker("", time.Minute, nil, testLogger())
	defer w.Close()

	_, err := w.Execute(context.Background(), apiServer(), &models.APICallOp{URL: "http://127.0.0.1:1/"}, 2*time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCommandTimeout)

	// неудачный запрос не оставляет сессию в пуле
	assert.Equal(t, 0, w.Pool().Len())
}

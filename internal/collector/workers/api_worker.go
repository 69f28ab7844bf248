package workers

import (
	"NetCollect/internal/collector/pool"
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// httpConn разделяемый http-клиент одного целевого сервера;
// Close сбрасывает keep-alive соединения транспорта
type httpConn struct {
	client *http.Client
}

func (c *httpConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// APIWorker опрашивает HTTP API целевых серверов
type APIWorker struct {
	baseWorker
}

func NewAPIWorker(group string, idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) *APIWorker {
	return &APIWorker{
		baseWorker: newBaseWorker(models.ProtocolAPI, group, idleTTL, sessions, logger),
	}
}

func (w *APIWorker) Execute(ctx context.Context, server *models.Server, op models.Operation, timeout time.Duration) (map[string]interface{}, error) {
	call, ok := op.(*models.APICallOp)
	if !ok {
		return nil, fmt.Errorf("%w: %s for api worker", ErrUnsupportedOperation, op.Type())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// режим TLS вшит в транспорт при создании, поэтому входит
	// в идентичность: insecure и строгая сессии живут раздельно
	identity := server.SessionKey()
	if !call.VerifyTLS {
		identity += ":insecure"
	}
	sess, err := w.pool.Acquire(ctx, identity, pool.Meta{ServerID: server.ID, Protocol: w.protocol}, dialHTTP(call.VerifyTLS))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCommandTimeout
		}
		return nil, err
	}

	client := sess.Conn.(*httpConn).client

	data, err := doRequest(ctx, client, call)
	if errors.Is(err, context.DeadlineExceeded) {
		w.pool.Discard(identity, "request timeout")
		return nil, ErrCommandTimeout
	}
	if err != nil {
		w.pool.Discard(identity, err.Error())
		return nil, err
	}

	w.pool.Release(identity)
	return data, nil
}

func doRequest(ctx context.Context, client *http.Client, call *models.APICallOp) (map[string]interface{}, error) {
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if call.Body != "" {
		body = strings.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	data := map[string]interface{}{
		"url":         call.URL,
		"method":      method,
		"status_code": resp.StatusCode,
	}

	var parsed interface{}
	if json.Unmarshal(raw, &parsed) == nil {
		data["body"] = parsed
	} else {
		data["body"] = string(raw)
	}

	return data, nil
}

const maxResponseBytes = 4 << 20

// dialHTTP подключения как таковых нет; "сессия" это транспорт
// с живыми keep-alive соединениями к целевому серверу
func dialHTTP(verifyTLS bool) pool.DialFunc {
	return func(ctx context.Context) (pool.Conn, error) {
		transport := &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
		if !verifyTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return &httpConn{client: &http.Client{Transport: transport}}, nil
	}
}

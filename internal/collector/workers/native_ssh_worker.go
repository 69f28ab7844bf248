package workers

import (
	"NetCollect/internal/collector/pool"
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/ssh"
)

// NativeSSHWorker облегченный ssh-сборщик: объединенный вывод,
// ошибка выполнения возвращается как часть данных
type NativeSSHWorker struct {
	baseWorker
}

func NewNativeSSHWorker(group string, idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) *NativeSSHWorker {
	return &NativeSSHWorker{
		baseWorker: newBaseWorker(models.ProtocolGoSSH, group, idleTTL, sessions, logger),
	}
}

func (w *NativeSSHWorker) Execute(ctx context.Context, server *models.Server, op models.Operation, timeout time.Duration) (map[string]interface{}, error) {
	cmd, ok := op.(*models.CommandOp)
	if !ok {
		return nil, fmt.Errorf("%w: %s for go-ssh worker", ErrUnsupportedOperation, op.Type())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	identity := server.SessionKey()
	sess, err := w.pool.Acquire(ctx, identity, pool.Meta{ServerID: server.ID, Protocol: w.protocol}, dialSSH(server, timeout))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCommandTimeout
		}
		return nil, err
	}

	client := sess.Conn.(*sshConn).client

	data, err := runBounded(ctx, func() (map[string]interface{}, error) {
		return runCombined(client, cmd.Command)
	})

	if errors.Is(err, ErrCommandTimeout) {
		w.pool.Discard(identity, "command timeout")
		return nil, err
	}
	if err != nil {
		w.pool.Discard(identity, err.Error())
		return nil, err
	}

	w.pool.Release(identity)
	return data, nil
}

// runCombined выполняет команду с объединенным stdout/stderr;
// ненулевой код выхода попадает в данные, а не в ошибку
func runCombined(client *ssh.Client, command string) (map[string]interface{}, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh session: %w", err)
	}
	defer session.Close()

	execError := ""
	output, err := session.CombinedOutput(command)
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			execError = err.Error()
		} else {
			return nil, fmt.Errorf("command execution failed: %w", err)
		}
	}

	return map[string]interface{}{
		"command": command,
		"output":  string(output),
		"error":   execError,
	}, nil
}

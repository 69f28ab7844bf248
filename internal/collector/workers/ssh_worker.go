package workers

import (
	"NetCollect/internal/collector/pool"
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/ssh"
)

type sshConn struct {
	client *ssh.Client
}

func (c *sshConn) Close() error { return c.client.Close() }

// SSHWorker выполняет команды на linux-серверах; stdout, stderr и код
// выхода возвращаются раздельно
type SSHWorker struct {
	baseWorker
}

func NewSSHWorker(group string, idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) *SSHWorker {
	return &SSHWorker{
		baseWorker: newBaseWorker(models.ProtocolSSH, group, idleTTL, sessions, logger),
	}
}

func (w *SSHWorker) Execute(ctx context.Context, server *models.Server, op models.Operation, timeout time.Duration) (map[string]interface{}, error) {
	cmd, ok := op.(*models.CommandOp)
	if !ok {
		return nil, fmt.Errorf("%w: %s for ssh worker", ErrUnsupportedOperation, op.Type())
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
		return runCommand(client, cmd.Command)
	})

	if errors.Is(err, ErrCommandTimeout) {
		w.pool.Discard(identity, "command timeout")
		return nil, err
	}
	if err != nil {
		// сломанная сессия не возвращается в пул
		w.pool.Discard(identity, err.Error())
		return nil, err
	}

	w.pool.Release(identity)
	return data, nil
}

// runCommand выполняет команду в новой ssh-сессии поверх общего клиента
func runCommand(client *ssh.Client, command string) (map[string]interface{}, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	exitStatus := 0
	if err := session.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// ненулевой код выхода — результат, а не сбой
			exitStatus = exitErr.ExitStatus()
		} else {
			return nil, fmt.Errorf("command execution failed: %w", err)
		}
	}

	return map[string]interface{}{
		"command":     command,
		"output":      stdout.String(),
		"error":       stderr.String(),
		"exit_status": exitStatus,
	}, nil
}

func dialSSH(server *models.Server, timeout time.Duration) pool.DialFunc {
	return func(ctx context.Context) (pool.Conn, error) {
		config := &ssh.ClientConfig{
			User: server.Username,
			Auth: []ssh.AuthMethod{
				ssh.Password(server.Password),
			},
			// целевые хосты задаются оператором, известного host key нет
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         timeout,
		}

		client, err := ssh.Dial("tcp", server.Address(), config)
		if err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", server.Address(), err)
		}

		return &sshConn{client: client}, nil
	}
}

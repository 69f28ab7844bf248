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

// NetmikoWorker ssh-вариант для сетевых устройств: выделяет pty и
// учитывает device_type; идентичность сессии включает тип устройства,
// так как промпт и поведение терминала зависят от него
type NetmikoWorker struct {
	baseWorker
}

func NewNetmikoWorker(group string, idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) *NetmikoWorker {
	return &NetmikoWorker{
		baseWorker: newBaseWorker(models.ProtocolNetmikoSSH, group, idleTTL, sessions, logger),
	}
}

func (w *NetmikoWorker) Execute(ctx context.Context, server *models.Server, op models.Operation, timeout time.Duration) (map[string]interface{}, error) {
	cmd, ok := op.(*models.CommandOp)
	if !ok {
		return nil, fmt.Errorf("%w: %s for netmiko-ssh worker", ErrUnsupportedOperation, op.Type())
	}

	deviceType := server.DeviceType
	if deviceType == "" {
		deviceType = "cisco_ios"
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	identity := server.SessionKey() + ":" + deviceType
	sess, err := w.pool.Acquire(ctx, identity, pool.Meta{ServerID: server.ID, Protocol: w.protocol}, dialSSH(server, timeout))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCommandTimeout
		}
		return nil, err
	}

	client := sess.Conn.(*sshConn).client

	data, err := runBounded(ctx, func() (map[string]interface{}, error) {
		return runDeviceCommand(client, deviceType, cmd.Command)
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

// runDeviceCommand выполняет команду с pty; сетевые устройства без
// pty обычно закрывают канал
func runDeviceCommand(client *ssh.Client, deviceType, command string) (map[string]interface{}, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh session: %w", err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := session.RequestPty("vt100", 80, 200, modes); err != nil {
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}

	output, err := session.CombinedOutput(command)
	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("command execution failed: %w", err)
		}
	}

	return map[string]interface{}{
		"command":     command,
		"output":      string(output),
		"device_type": deviceType,
	}, nil
}

package workers

import (
	"NetCollect/internal/collector/pool"
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	defaultSNMPPort = 161
	sysDescrOID     = "1.3.6.1.2.1.1.1.0"
)

type snmpConn struct {
	client *gosnmp.GoSNMP
}

func (c *snmpConn) Close() error { return c.client.Conn.Close() }

// SNMPWorker опрашивает устройства по SNMP v2c
type SNMPWorker struct {
	baseWorker
}

func NewSNMPWorker(group string, idleTTL time.Duration, sessions storage.SessionStore, logger *slog.Logger) *SNMPWorker {
	return &SNMPWorker{
		baseWorker: newBaseWorker(models.ProtocolSNMP, group, idleTTL, sessions, logger),
	}
}

func (w *SNMPWorker) Execute(ctx context.Context, server *models.Server, op models.Operation, timeout time.Duration) (map[string]interface{}, error) {
	community, oid, walk, err := snmpParams(op)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	identity := server.SessionKey()
	sess, err := w.pool.Acquire(ctx, identity, pool.Meta{ServerID: server.ID, Protocol: w.protocol}, dialSNMP(server, community, timeout))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCommandTimeout
		}
		return nil, err
	}

	client := sess.Conn.(*snmpConn).client
	// клиент gosnmp не потокобезопасен; слот пула гарантирует
	// единственного пользователя, community можно менять между запросами
	client.Community = community

	data, err := runBounded(ctx, func() (map[string]interface{}, error) {
		if walk {
			return snmpWalk(client, oid)
		}
		return snmpGet(client, oid)
	})

	if errors.Is(err, ErrCommandTimeout) {
		w.pool.Discard(identity, "snmp timeout")
		return nil, err
	}
	if err != nil {
		w.pool.Discard(identity, err.Error())
		return nil, err
	}

	w.pool.Release(identity)
	return data, nil
}

func snmpParams(op models.Operation) (community, oid string, walk bool, err error) {
	switch o := op.(type) {
	case *models.SNMPGetOp:
		return o.Community, o.OID, false, nil
	case *models.SNMPWalkOp:
		return o.Community, o.OID, true, nil
	default:
		return "", "", false, fmt.Errorf("%w: %s for snmp worker", ErrUnsupportedOperation, op.Type())
	}
}

func snmpGet(client *gosnmp.GoSNMP, oid string) (map[string]interface{}, error) {
	packet, err := client.Get([]string{oid})
	if err != nil {
		return nil, fmt.Errorf("snmp get %s: %w", oid, err)
	}
	if len(packet.Variables) == 0 {
		return nil, fmt.Errorf("snmp get %s: empty response", oid)
	}

	pdu := packet.Variables[0]
	if pdu.Type == gosnmp.NoSuchObject || pdu.Type == gosnmp.NoSuchInstance {
		return nil, fmt.Errorf("snmp get %s: no such object", oid)
	}

	return map[string]interface{}{
		"oid":   oid,
		"value": renderPDU(pdu),
		"type":  pdu.Type.String(),
	}, nil
}

func snmpWalk(client *gosnmp.GoSNMP, oid string) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	err := client.Walk(oid, func(pdu gosnmp.SnmpPDU) error {
		values[strings.TrimPrefix(pdu.Name, ".")] = renderPDU(pdu)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snmp walk %s: %w", oid, err)
	}

	return map[string]interface{}{
		"oid":    oid,
		"values": values,
		"count":  len(values),
	}, nil
}

// renderPDU приводит значение PDU к сериализуемому виду
func renderPDU(pdu gosnmp.SnmpPDU) interface{} {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return string(b)
		}
		return pdu.Value
	case gosnmp.Counter64:
		return gosnmp.ToBigInt(pdu.Value).String()
	default:
		return pdu.Value
	}
}

// dialSNMP открывает UDP-сокет и проверяет доступность агента
// запросом sysDescr
func dialSNMP(server *models.Server, community string, timeout time.Duration) pool.DialFunc {
	return func(ctx context.Context) (pool.Conn, error) {
		port := server.Port
		if port == 0 {
			port = defaultSNMPPort
		}

		client := &gosnmp.GoSNMP{
			Target:    server.Host,
			Port:      uint16(port),
			Community: community,
			Version:   gosnmp.Version2c,
			Timeout:   timeout,
			Retries:   1,
		}

		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("snmp connect %s:%d: %w", server.Host, port, err)
		}

		if _, err := client.Get([]string{sysDescrOID}); err != nil {
			client.Conn.Close()
			return nil, fmt.Errorf("snmp probe %s:%d: %w", server.Host, port, err)
		}

		return &snmpConn{client: client}, nil
	}
}

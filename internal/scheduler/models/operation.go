package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Operation типизированная полезная нагрузка задачи;
// вариант определяется типом задачи и валидируется при создании
type Operation interface {
	Type() TaskType
	Validate() error
}

// CommandOp команда для выполнения по SSH
type CommandOp struct {
	Command string `json:"command"`
}

func (o *CommandOp) Type() TaskType { return TaskTypeCommand }

func (o *CommandOp) Validate() error {
	if strings.TrimSpace(o.Command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// APICallOp HTTP-запрос к API целевого сервера
type APICallOp struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	VerifyTLS bool              `json:"verify_tls"`
}

func (o *APICallOp) Type() TaskType { return TaskTypeAPICall }

func (o *APICallOp) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("url is required")
	}

	parsed, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme: %s", parsed.Scheme)
	}

	switch strings.ToUpper(o.Method) {
	case "", "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD":
		return nil
	default:
		return fmt.Errorf("unsupported http method: %s", o.Method)
	}
}

// SNMPGetOp чтение одного OID
type SNMPGetOp struct {
	Community string `json:"community"`
	OID       string `json:"oid"`
}

func (o *SNMPGetOp) Type() TaskType { return TaskTypeSNMPGet }

func (o *SNMPGetOp) Validate() error { return validateSNMP(o.Community, o.OID) }

// SNMPWalkOp обход поддерева OID
type SNMPWalkOp struct {
	Community string `json:"community"`
	OID       string `json:"oid"`
}

func (o *SNMPWalkOp) Type() TaskType { return TaskTypeSNMPWalk }

func (o *SNMPWalkOp) Validate() error { return validateSNMP(o.Community, o.OID) }

func validateSNMP(community, oid string) error {
	if community == "" {
		return fmt.Errorf("community is required")
	}
	if oid == "" {
		return fmt.Errorf("oid is required")
	}
	for _, part := range strings.Split(strings.TrimPrefix(oid, "."), ".") {
		for _, r := range part {
			if r < '0' || r > '9' {
				return fmt.Errorf("invalid oid: %s", oid)
			}
		}
		if part == "" {
			return fmt.Errorf("invalid oid: %s", oid)
		}
	}
	return nil
}

// ParseOperation восстанавливает вариант операции из сырого JSON по типу задачи
func ParseOperation(taskType TaskType, raw json.RawMessage) (Operation, error) {
	var op Operation

	switch taskType {
	case TaskTypeCommand:
		op = &CommandOp{}
	case TaskTypeAPICall:
		op = &APICallOp{}
	case TaskTypeSNMPGet:
		op = &SNMPGetOp{}
	case TaskTypeSNMPWalk:
		op = &SNMPWalkOp{}
	default:
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}

	if err := json.Unmarshal(raw, op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s operation: %w", taskType, err)
	}

	return op, nil
}

// MarshalOperation сериализует операцию для хранения
func MarshalOperation(op Operation) (json.RawMessage, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s operation: %w", op.Type(), err)
	}
	return data, nil
}

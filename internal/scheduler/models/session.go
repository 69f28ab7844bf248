package models

import "time"

type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

// ConnectionSession состояние живого соединения в пуле воркера
type ConnectionSession struct {
	SessionID      string           `json:"session_id"`
	ServerID       string           `json:"server_id"`
	ProtocolType   ProtocolType     `json:"protocol_type"`
	Status         ConnectionStatus `json:"status"`
	ConnectedAt    time.Time        `json:"connected_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	ErrorMessage   string           `json:"error_message,omitempty"`
}

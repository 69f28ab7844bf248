package models

import (
	"fmt"
	"time"
)

type ProtocolType string

const (
	ProtocolSSH        ProtocolType = "ssh"
	ProtocolNetmikoSSH ProtocolType = "netmiko-ssh"
	ProtocolGoSSH      ProtocolType = "go-ssh"
	ProtocolAPI        ProtocolType = "api"
	ProtocolSNMP       ProtocolType = "snmp"
)

type ManagementType string

const (
	ManagementManual    ManagementType = "manual"
	ManagementScheduled ManagementType = "scheduled"
)

type ServerStatus string

const (
	ServerStatusActive   ServerStatus = "active"
	ServerStatusInactive ServerStatus = "inactive"
	ServerStatusError    ServerStatus = "error"
)

type Server struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Host           string         `json:"host"`
	Port           int            `json:"port"`
	Username       string         `json:"username"`
	Password       string         `json:"-"`
	ProtocolType   ProtocolType   `json:"protocol_type"`
	DeviceType     string         `json:"device_type"`
	ManagementType ManagementType `json:"management_type"`
	Status         ServerStatus   `json:"status"`
	Description    string         `json:"description,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SessionKey возвращает идентичность соединения для пула сессий
func (s *Server) SessionKey() string {
	return fmt.Sprintf("%s:%d:%s:%s", s.Host, s.Port, s.Username, s.ProtocolType)
}

func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func ValidProtocol(p ProtocolType) bool {
	switch p {
	case ProtocolSSH, ProtocolNetmikoSSH, ProtocolGoSSH, ProtocolAPI, ProtocolSNMP:
		return true
	}
	return false
}

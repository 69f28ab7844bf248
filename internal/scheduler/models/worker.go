package models

import "time"

// WorkerDescriptor живой экземпляр воркера; не персистентен,
// восстанавливается из heartbeat-ов при перезапуске
type WorkerDescriptor struct {
	ID            string       `json:"id"`
	ProtocolType  ProtocolType `json:"protocol_type"`
	Group         string       `json:"group,omitempty"`
	InFlight      int          `json:"in_flight"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

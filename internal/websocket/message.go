package websocket

import (
	"encoding/json"
	"time"

	"offline-sync-engine/internal/domain"
)

type MessageType string

const (
	TypeStatus      MessageType = "status"
	TypeSyncRequest MessageType = "sync_request"
	TypeAck         MessageType = "ack"
	TypeError       MessageType = "error"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type StatusPayload struct {
	IsOnline       bool       `json:"isOnline"`
	SyncInProgress bool       `json:"syncInProgress"`
	LastSyncTime   *time.Time `json:"lastSyncTime"`
}

func NewStatusPayload(s domain.StatusSnapshot) *StatusPayload {
	return &StatusPayload{
		IsOnline:       s.IsOnline,
		SyncInProgress: s.SyncInProgress,
		LastSyncTime:   s.LastSyncTime,
	}
}

type AckPayload struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v any) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

package chat

import (
	"time"
)

const (
	TypeRegister         = "register"
	TypeHeartbeat        = "heartbeat"
	TypeVoiceInstruction = "voice_instruction"
	TypeSystem           = "system"
)

// RegisterFrame is the inbound "register as <username>" control message.
// clientId and timestamp are sent by the browser client but not trusted.
type RegisterFrame struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	ClientID  string `json:"clientId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// InstructionEnvelope is the outbound message delivered to a resolved connection.
type InstructionEnvelope struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func NewInstruction(content string, at time.Time) InstructionEnvelope {
	return InstructionEnvelope{
		Type:      TypeVoiceInstruction,
		Content:   content,
		Timestamp: at.Format(time.RFC3339Nano),
	}
}

type HeartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewHeartbeat(at time.Time) HeartbeatFrame {
	return HeartbeatFrame{Type: TypeHeartbeat, Timestamp: at.UnixMilli()}
}

// SystemFrame tells the peer something about its session, e.g. a rejected registration.
type SystemFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func NewSystem(content string) SystemFrame {
	return SystemFrame{Type: TypeSystem, Content: content}
}

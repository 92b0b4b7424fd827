package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one append-only entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Strategy  string    `json:"strategy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage 生成带 ID 与 UTC 时间戳的消息。
func NewMessage(sessionID string, role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now().UTC(),
	}
}

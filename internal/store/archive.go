package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
)

const sessionKeyPrefix = "sessions/"

// SessionArchive 以 JSON 形式保存已结束的会话。
type SessionArchive struct {
	kv KV
}

func NewSessionArchive(kv KV) *SessionArchive {
	return &SessionArchive{kv: kv}
}

// Save 持久化会话，会覆盖同 ID 的旧记录。
func (a *SessionArchive) Save(ctx context.Context, session stress.Session) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return a.kv.Put(ctx, sessionKeyPrefix+session.ID, data)
}

// Load 读取会话，不存在时返回 ErrNotFound。
func (a *SessionArchive) Load(ctx context.Context, id string) (stress.Session, error) {
	data, err := a.kv.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		return stress.Session{}, err
	}
	var session stress.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return stress.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, nil
}

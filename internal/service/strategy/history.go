package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/store"
)

// HistoryKey 是策略效果历史在键值存储中的固定键。
const HistoryKey = "strategyHistory"

// HistoryStore 读写完整的策略效果历史。
type HistoryStore interface {
	Load(ctx context.Context) ([]stress.StrategyEffectiveness, error)
	Append(ctx context.Context, record stress.StrategyEffectiveness) error
}

// KVHistory 把历史序列化为 JSON 列表保存在单个键下。
// 只保证进程内的读改写串行，不防御外部并发写入。
type KVHistory struct {
	kv store.KV
	mu sync.Mutex
}

func NewKVHistory(kv store.KV) *KVHistory {
	return &KVHistory{kv: kv}
}

func (h *KVHistory) Load(ctx context.Context) ([]stress.StrategyEffectiveness, error) {
	data, err := h.kv.Get(ctx, HistoryKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load strategy history: %w", err)
	}

	var records []stress.StrategyEffectiveness
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode strategy history: %w", err)
	}
	return records, nil
}

func (h *KVHistory) Append(ctx context.Context, record stress.StrategyEffectiveness) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.Load(ctx)
	if err != nil {
		return err
	}
	records = append(records, record)

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode strategy history: %w", err)
	}
	if err := h.kv.Put(ctx, HistoryKey, data); err != nil {
		return fmt.Errorf("save strategy history: %w", err)
	}
	return nil
}

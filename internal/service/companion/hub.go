// Package companion 管理穿戴设备伴侣的 WebSocket 连接。
package companion

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
)

// Options 连接与心率判定参数。
type Options struct {
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	PingInterval  time.Duration
	HeartRateTTL  time.Duration
	ElevatedBPM   float64
	MaxFrameBytes int64
}

// DefaultOptions 默认参数，心率超过 100 bpm 视为偏高。
func DefaultOptions() Options {
	return Options{
		WriteTimeout:  10 * time.Second,
		ReadTimeout:   60 * time.Second,
		PingInterval:  25 * time.Second,
		HeartRateTTL:  10 * time.Second,
		ElevatedBPM:   100,
		MaxFrameBytes: 4 << 10,
	}
}

// Outbound 是发往伴侣设备的消息。
type Outbound struct {
	Type        string    `json:"type"`
	StressLevel string    `json:"stressLevel,omitempty"`
	MeanStress  float64   `json:"meanStress,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Inbound 是伴侣设备上报的消息。
type Inbound struct {
	HeartRate   *float64   `json:"heartRate,omitempty"`
	StressAlert bool       `json:"stressAlert,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(timeout time.Duration, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(messageType, data)
}

// Hub 是进程级的伴侣连接注册表。
type Hub struct {
	opts Options
	now  func() time.Time

	mu          sync.RWMutex
	connections map[string]*client

	signalMu    sync.RWMutex
	heartRate   float64
	heartRateAt time.Time
	lastAlertAt time.Time
	onAlert     func(time.Time)
}

func NewHub(opts Options) *Hub {
	def := DefaultOptions()
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.HeartRateTTL <= 0 {
		opts.HeartRateTTL = def.HeartRateTTL
	}
	if opts.ElevatedBPM <= 0 {
		opts.ElevatedBPM = def.ElevatedBPM
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = def.MaxFrameBytes
	}
	return &Hub{
		opts:        opts,
		now:         time.Now,
		connections: make(map[string]*client),
	}
}

// OnStressAlert 注册伴侣设备上报压力警报时的回调。
func (h *Hub) OnStressAlert(fn func(at time.Time)) {
	h.signalMu.Lock()
	h.onAlert = fn
	h.signalMu.Unlock()
}

// Serve 注册连接并阻塞读取，直到连接断开或 ctx 结束。
func (h *Hub) Serve(ctx context.Context, id string, conn *websocket.Conn) {
	c := &client{conn: conn}
	h.add(id, c)
	defer h.remove(id, c)

	conn.SetReadLimit(h.opts.MaxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.pingLoop(ctx, id, c)

	log.Printf("[companion] %s connected", id)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[companion] %s read error: %v", id, err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[companion] %s sent invalid message: %v", id, err)
			continue
		}
		h.Handle(msg)
	}
}

// Handle 处理一条上报消息。
func (h *Hub) Handle(msg Inbound) {
	at := h.now()
	if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
		at = *msg.Timestamp
	}
	if msg.HeartRate != nil {
		h.ObserveHeartRate(*msg.HeartRate, at)
	}
	if msg.StressAlert {
		h.signalMu.Lock()
		h.lastAlertAt = at
		fn := h.onAlert
		h.signalMu.Unlock()
		log.Printf("[companion] stress alert received")
		if fn != nil {
			fn(at)
		}
	}
}

// ObserveHeartRate 记录最新心率。
func (h *Hub) ObserveHeartRate(bpm float64, at time.Time) {
	if bpm <= 0 {
		return
	}
	h.signalMu.Lock()
	if at.After(h.heartRateAt) {
		h.heartRate = bpm
		h.heartRateAt = at
	}
	h.signalMu.Unlock()
}

// ElevatedHeartRate 仅在心率足够新且偏高时返回。
func (h *Hub) ElevatedHeartRate() (float64, bool) {
	h.signalMu.RLock()
	defer h.signalMu.RUnlock()
	if h.heartRateAt.IsZero() || h.now().Sub(h.heartRateAt) > h.opts.HeartRateTTL {
		return 0, false
	}
	if h.heartRate <= h.opts.ElevatedBPM {
		return 0, false
	}
	return h.heartRate, true
}

// LastStressAlert 返回最近一次警报时间。
func (h *Hub) LastStressAlert() (time.Time, bool) {
	h.signalMu.RLock()
	defer h.signalMu.RUnlock()
	return h.lastAlertAt, !h.lastAlertAt.IsZero()
}

// Reachable 表示当前是否有伴侣设备在线。
func (h *Hub) Reachable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections) > 0
}

// Count 返回在线连接数。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast 向所有在线设备发送消息，返回成功数。不可达时直接跳过。
func (h *Hub) Broadcast(msg Outbound) int {
	if !h.Reachable() {
		return 0
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[companion] encode message failed: %v", err)
		return 0
	}

	h.mu.RLock()
	targets := make(map[string]*client, len(h.connections))
	for id, c := range h.connections {
		targets[id] = c
	}
	h.mu.RUnlock()

	sent := 0
	for id, c := range targets {
		if err := c.write(h.opts.WriteTimeout, websocket.TextMessage, data); err != nil {
			log.Printf("[companion] write to %s failed: %v", id, err)
			h.remove(id, c)
			continue
		}
		sent++
	}
	return sent
}

// NotifyTransition 把等级变化推送给伴侣设备。
func (h *Hub) NotifyTransition(t analysis.Transition) int {
	return h.Broadcast(Outbound{
		Type:        "stressLevel",
		StressLevel: string(t.To),
		MeanStress:  t.MeanStress,
		Timestamp:   t.At,
	})
}

// CloseAll 关闭所有连接。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.connections {
		c.conn.Close()
		delete(h.connections, id)
	}
}

func (h *Hub) add(id string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, exists := h.connections[id]; exists {
		old.conn.Close()
	}
	h.connections[id] = c
}

// remove 只移除仍是同一个 client 的连接，避免误删重连后的新连接。
func (h *Hub) remove(id string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, exists := h.connections[id]; exists && cur == c {
		cur.conn.Close()
		delete(h.connections, id)
		log.Printf("[companion] %s disconnected", id)
	}
}

func (h *Hub) pingLoop(ctx context.Context, id string, c *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(h.opts.WriteTimeout, websocket.PingMessage, nil); err != nil {
				h.remove(id, c)
				return
			}
		}
	}
}

// Package pipeline 把读数分类、对话编排与伴侣设备连接组合在一起。
package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/companion"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
)

// neutralStress 在还没有任何读数时作为会话起止读数。
const neutralStress = 0.5

// Options 控制会话的自动行为。
type Options struct {
	// Greet 为 true 时开启会话后立即朗读问候语
	Greet bool
	// AutoStartOnAlert 为 true 时伴侣设备的压力警报会开启会话
	AutoStartOnAlert bool
}

// Pipeline 是读数、分类器和对话之间的唯一入口。
type Pipeline struct {
	monitor *analysis.Monitor
	conv    *conversation.Orchestrator
	hub     *companion.Hub
	opts    Options
	now     func() time.Time

	// ingestMu 让分类器与会话以同一顺序接收读数
	ingestMu sync.Mutex
}

// New 组合各组件，hub 可以为 nil。
func New(monitor *analysis.Monitor, conv *conversation.Orchestrator, hub *companion.Hub, opts Options) *Pipeline {
	p := &Pipeline{
		monitor: monitor,
		conv:    conv,
		hub:     hub,
		opts:    opts,
		now:     time.Now,
	}
	if hub != nil {
		hub.OnStressAlert(p.handleStressAlert)
	}
	return p
}

// Ingest 把读数交给分类器与进行中的会话，等级变化时通知伴侣设备。
func (p *Pipeline) Ingest(r stress.Reading) (analysis.Transition, bool) {
	p.ingestMu.Lock()
	transition, changed := p.monitor.Ingest(r)
	p.conv.RecordReading(r)
	p.ingestMu.Unlock()

	if changed && p.hub != nil {
		if sent := p.hub.NotifyTransition(transition); sent > 0 {
			log.Printf("[pipeline] transition %s -> %s sent to %d companion(s)", transition.From, transition.To, sent)
		}
	}
	return transition, changed
}

// Snapshot 返回分类器当前状态。
func (p *Pipeline) Snapshot() analysis.Snapshot {
	return p.monitor.Snapshot()
}

// Start 以当前等级和最新读数开启会话。
func (p *Pipeline) Start(ctx context.Context) (stress.Session, error) {
	session, err := p.conv.StartSession(ctx, p.monitor.Level(), p.latestOrNeutral())
	if err != nil {
		return stress.Session{}, err
	}
	if p.opts.Greet {
		p.conv.Greet(ctx)
	}
	return session, nil
}

// End 以分类器的降级判定结束会话。
func (p *Pipeline) End(ctx context.Context) (stress.Session, bool) {
	return p.conv.EndSession(ctx, p.monitor.HasDeEscalated(), p.latestOrNeutral())
}

// Send 以当前等级处理文本消息。
func (p *Pipeline) Send(ctx context.Context, text string) (conversation.Turn, error) {
	return p.conv.SendMessage(ctx, text, p.monitor.Level())
}

// Voice 以当前等级处理语音识别结果。
func (p *Pipeline) Voice(ctx context.Context, text string) (conversation.Turn, error) {
	return p.conv.HandleVoiceInput(ctx, text, p.monitor.Level())
}

// Subscribe 订阅等级变化。
func (p *Pipeline) Subscribe(buffer int) (<-chan analysis.Transition, func()) {
	return p.monitor.Subscribe(buffer)
}

func (p *Pipeline) Conversation() *conversation.Orchestrator {
	return p.conv
}

func (p *Pipeline) Hub() *companion.Hub {
	return p.hub
}

func (p *Pipeline) latestOrNeutral() stress.Reading {
	if r, ok := p.monitor.Latest(); ok {
		return r
	}
	return stress.NewReading(p.now(), neutralStress, neutralStress, neutralStress)
}

func (p *Pipeline) handleStressAlert(at time.Time) {
	if !p.opts.AutoStartOnAlert {
		return
	}
	if _, active := p.conv.CurrentSession(); active {
		return
	}
	session, err := p.Start(context.Background())
	if err != nil {
		log.Printf("[pipeline] start session on alert failed: %v", err)
		return
	}
	log.Printf("[pipeline] companion alert at %s opened session %s", at.Format(time.RFC3339), session.ID)
}

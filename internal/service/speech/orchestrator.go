// Package speech 编排语音播报：优先使用网络 TTS，失败时回退到本地合成。
package speech

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

// State 是播报状态机的当前状态。
type State string

const (
	StateIdle               State = "idle"
	StateRequestingPrimary  State = "requesting_primary"
	StatePlaying            State = "playing"
	StateRequestingFallback State = "requesting_fallback"
)

// Provider 是主通道的网络 TTS。
type Provider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Synthesizer 是本地合成器，阻塞到朗读结束。
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Player 播放音频，阻塞到播放结束。
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

var errPrimaryUnavailable = errors.New("primary speech provider not configured")

type utterance struct {
	id         string
	text       string
	cancel     context.CancelFunc
	finished   chan struct{}
	completion *Completion
}

// Orchestrator 保证同一时刻只有一个播报在使用音频设备。
type Orchestrator struct {
	provider Provider
	fallback Synthesizer
	player   Player
	device   Device

	mu      sync.Mutex
	current *utterance
	state   State
}

// NewOrchestrator 创建编排器。provider 为 nil 时直接走本地合成。
func NewOrchestrator(provider Provider, fallback Synthesizer, player Player, device Device) *Orchestrator {
	if fallback == nil {
		fallback = LogSynthesizer{}
	}
	if player == nil {
		player = DiscardPlayer{}
	}
	if device == nil {
		device = NewExclusiveDevice()
	}
	return &Orchestrator{
		provider: provider,
		fallback: fallback,
		player:   player,
		device:   device,
		state:    StateIdle,
	}
}

// Speak 开始新的播报并抢占正在进行的播报。
// 播报的生命周期与 ctx 的取消无关，只能通过 Stop 或新的 Speak 终止。
func (o *Orchestrator) Speak(ctx context.Context, text string) *Completion {
	uctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	u := &utterance{
		id:         uuid.NewString(),
		text:       text,
		cancel:     cancel,
		finished:   make(chan struct{}),
		completion: newCompletion(),
	}

	o.mu.Lock()
	prev := o.current
	o.current = u
	o.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go o.run(uctx, u, prev)
	return u.completion
}

// Stop 取消当前播报，可重复调用。
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cur := o.current
	o.mu.Unlock()
	if cur != nil {
		cur.cancel()
	}
}

// State 返回当前状态。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(u *utterance, s State) {
	o.mu.Lock()
	if o.current == u {
		o.state = s
	}
	o.mu.Unlock()
}

func (o *Orchestrator) finish(u *utterance) {
	o.mu.Lock()
	if o.current == u {
		o.current = nil
		o.state = StateIdle
	}
	o.mu.Unlock()
	u.cancel()
	close(u.finished)
}

func (o *Orchestrator) run(ctx context.Context, u *utterance, prev *utterance) {
	defer o.finish(u)
	defer func() {
		// 兜底，保证任何退出路径都会完成
		u.completion.resolve(Outcome{Path: PathNone, Cancelled: ctx.Err() != nil})
	}()

	if prev != nil {
		<-prev.finished
	}
	if ctx.Err() != nil {
		u.completion.resolve(Outcome{Path: PathNone, Cancelled: true})
		return
	}

	o.setState(u, StateRequestingPrimary)
	primaryErr := o.playPrimary(ctx, u)
	if primaryErr == nil {
		u.completion.resolve(Outcome{Path: PathPrimary})
		return
	}
	if ctx.Err() != nil {
		u.completion.resolve(Outcome{Path: PathPrimary, Cancelled: true})
		return
	}
	log.Printf("[speech] primary failed kind=%s, use fallback: %v", apperr.Kind(primaryErr), primaryErr)

	o.setState(u, StateRequestingFallback)
	fallbackErr := o.speakFallback(ctx, u)
	if ctx.Err() != nil {
		u.completion.resolve(Outcome{Path: PathFallback, Cancelled: true})
		return
	}
	if fallbackErr != nil {
		log.Printf("[speech] fallback failed: %v", fallbackErr)
	}
	u.completion.resolve(Outcome{Path: PathFallback, Err: fallbackErr})
}

// playPrimary 持有设备完成网络合成与播放，返回前总会释放设备。
func (o *Orchestrator) playPrimary(ctx context.Context, u *utterance) error {
	if o.provider == nil {
		return errPrimaryUnavailable
	}
	if err := o.device.Acquire(u.id); err != nil {
		return err
	}
	defer o.device.Release(u.id)

	audio, err := o.provider.Synthesize(ctx, u.text)
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return apperr.Empty("speech provider")
	}

	o.setState(u, StatePlaying)
	return o.player.Play(ctx, audio)
}

// speakFallback 重新获取设备后使用本地合成。
func (o *Orchestrator) speakFallback(ctx context.Context, u *utterance) error {
	if err := o.device.Acquire(u.id); err != nil {
		return err
	}
	defer o.device.Release(u.id)
	return o.fallback.Speak(ctx, u.text)
}

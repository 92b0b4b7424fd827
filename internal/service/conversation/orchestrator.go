// Package conversation 串联推荐、生成与播报，并维护消息记录与会话。
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/chat"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ai"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/speech"
)

// ApologyMessage 在生成失败时展示并朗读给用户。
const ApologyMessage = "I'm having trouble connecting right now. Please check your internet connection and try again."

// GreetingMessage 是会话开始时的问候语。
const GreetingMessage = "Hi! I'm Anchor. I'm here to support you. How are you feeling right now?"

const (
	freshReadingWindow = 5 * time.Second
	finalizeTimeout    = 15 * time.Second
)

var (
	// ErrSessionActive 表示已有进行中的会话。
	ErrSessionActive = fmt.Errorf("%w: session already active", apperr.ErrInvalidState)
	// ErrProcessing 表示上一条语音输入仍在处理中。
	ErrProcessing = errors.New("still processing previous input")
	// ErrEmptyMessage 表示消息内容为空。
	ErrEmptyMessage = errors.New("message text is required")
)

type Generator interface {
	Generate(ctx context.Context, req ai.Request) (string, error)
}

type Recommender interface {
	Recommend(ctx context.Context, level stress.Level, recent []stress.Reading) (stress.CopingStrategy, bool)
	RecordEffectiveness(ctx context.Context, strategy stress.CopingStrategy, initialStress, finalStress float64) error
}

type Speaker interface {
	Speak(ctx context.Context, text string) *speech.Completion
	Stop()
}

type Minter interface {
	Mint(ctx context.Context, amount int) (string, error)
}

type SessionArchive interface {
	Save(ctx context.Context, session stress.Session) error
}

// HeartRateSource 提供伴侣设备测得的偏高心率。
type HeartRateSource interface {
	ElevatedHeartRate() (float64, bool)
}

// Deps 汇总编排器的协作者，Minter、Archive、HeartRate 可为空。
type Deps struct {
	Generator   Generator
	Recommender Recommender
	Speaker     Speaker
	Minter      Minter
	Archive     SessionArchive
	HeartRate   HeartRateSource
}

// State 是会话状态机的状态。
type State string

const (
	StateNoSession     State = "no_session"
	StateSessionActive State = "session_active"
	StateSessionEnded  State = "session_ended"
)

// Rewards 累计成功会话获得的代币与连续成功次数。
type Rewards struct {
	CalmTokens int `json:"calmTokens"`
	Streak     int `json:"streak"`
}

// Turn 是一轮对话的结果。
type Turn struct {
	User      chat.Message          `json:"user"`
	Reply     chat.Message          `json:"reply"`
	Strategy  stress.CopingStrategy `json:"strategy,omitempty"`
	Failed    bool                  `json:"failed"`
	ErrorKind string                `json:"errorKind,omitempty"`
	Speech    *speech.Completion    `json:"-"`
}

// Orchestrator 持有消息记录与当前会话。
type Orchestrator struct {
	deps Deps
	now  func() time.Time

	// turnMu 串行化对话轮次，语音输入用 TryLock 拒绝重入
	turnMu     sync.Mutex
	processing atomic.Bool

	mu          sync.RWMutex
	messages    []chat.Message
	session     *stress.Session
	startStress float64
	state       State
	rewards     Rewards
	lastSession *stress.Session
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		now:      time.Now,
		messages: make([]chat.Message, 0, 32),
		state:    StateNoSession,
	}
}

// StartSession 开启新会话，已有会话时返回 ErrSessionActive。
func (o *Orchestrator) StartSession(_ context.Context, level stress.Level, initial stress.Reading) (stress.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil {
		return stress.Session{}, ErrSessionActive
	}

	initial = initial.Normalize()
	session := &stress.Session{
		ID:         uuid.NewString(),
		StartTime:  o.now().UTC(),
		Readings:   []stress.Reading{initial},
		Strategies: []stress.CopingStrategy{},
	}
	o.session = session
	o.startStress = initial.Stress
	o.state = StateSessionActive

	log.Printf("[conversation] session %s started level=%s stress=%.2f", session.ID, level, initial.Stress)
	return session.Clone(), nil
}

// RecordReading 把读数追加到进行中的会话，乱序读数被忽略。
func (o *Orchestrator) RecordReading(r stress.Reading) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return false
	}
	if n := len(o.session.Readings); n > 0 && r.Timestamp.Before(o.session.Readings[n-1].Timestamp) {
		return false
	}
	o.session.Readings = append(o.session.Readings, r.Normalize())
	return true
}

// SendMessage 处理一条文本输入，总是向记录追加恰好两条消息。
func (o *Orchestrator) SendMessage(ctx context.Context, text string, level stress.Level) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	return o.runTurn(ctx, text, level)
}

// HandleVoiceInput 处理语音识别结果。上一轮尚未结束时返回 ErrProcessing，
// 否则一直持有处理锁直到回复播报完成。
func (o *Orchestrator) HandleVoiceInput(ctx context.Context, text string, level stress.Level) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	if !o.turnMu.TryLock() {
		log.Printf("[conversation] voice input rejected, previous turn still processing")
		return Turn{}, ErrProcessing
	}
	defer o.turnMu.Unlock()

	turn, err := o.runTurn(ctx, text, level)
	if err != nil {
		return turn, err
	}
	if turn.Speech != nil {
		if _, err := turn.Speech.Wait(ctx); err != nil {
			log.Printf("[conversation] stop waiting for speech: %v", err)
		}
	}
	return turn, nil
}

// Processing 表示是否有对话轮次正在进行。
func (o *Orchestrator) Processing() bool {
	return o.processing.Load()
}

func (o *Orchestrator) runTurn(ctx context.Context, text string, level stress.Level) (Turn, error) {
	o.processing.Store(true)
	defer o.processing.Store(false)

	o.mu.Lock()
	sessionID := ""
	var recent []stress.Reading
	var latest *stress.Reading
	if o.session != nil {
		sessionID = o.session.ID
		recent = append([]stress.Reading(nil), o.session.Readings...)
		if n := len(recent); n > 0 {
			r := recent[n-1]
			latest = &r
		}
	}
	user := chat.NewMessage(sessionID, chat.RoleUser, text)
	o.messages = append(o.messages, user)
	history := append([]chat.Message(nil), o.messages...)
	o.mu.Unlock()

	strategy, hasStrategy := o.deps.Recommender.Recommend(ctx, level, recent)

	req := ai.Request{Level: level, History: history}
	if hasStrategy {
		req.Strategy = strategy
	}
	if latest != nil && o.isFresh(latest.Timestamp) {
		breathing := latest.Breathing
		req.BreathingRate = &breathing
	}
	if o.deps.HeartRate != nil {
		if bpm, ok := o.deps.HeartRate.ElevatedHeartRate(); ok {
			req.HeartRate = &bpm
		}
	}

	turn := Turn{User: user}
	replyText, err := o.deps.Generator.Generate(ctx, req)
	if err != nil {
		log.Printf("[conversation] generate failed kind=%s: %v", apperr.Kind(err), err)
		turn.Failed = true
		turn.ErrorKind = apperr.Kind(err)
		replyText = ApologyMessage
	}

	reply := chat.NewMessage(sessionID, chat.RoleAssistant, replyText)
	if !turn.Failed && hasStrategy {
		reply.Strategy = string(strategy)
		turn.Strategy = strategy
	}

	o.mu.Lock()
	o.messages = append(o.messages, reply)
	o.mu.Unlock()

	turn.Reply = reply
	turn.Speech = o.deps.Speaker.Speak(ctx, reply.Content)

	if !turn.Failed && hasStrategy {
		o.mu.Lock()
		if o.session != nil && o.session.ID == sessionID {
			o.session.Strategies = append(o.session.Strategies, strategy)
		}
		o.mu.Unlock()
	}

	return turn, nil
}

func (o *Orchestrator) isFresh(ts time.Time) bool {
	age := o.now().Sub(ts)
	if age < 0 {
		age = -age
	}
	return age < freshReadingWindow
}

// EndSession 关闭当前会话。没有会话时返回 false 且不做任何事。
// 效果记录、代币发放与归档都是尽力而为，失败只记录日志。
// CalmTokens 只在拿到铸造回执后增加。
func (o *Orchestrator) EndSession(ctx context.Context, hasDeEscalated bool, final stress.Reading) (stress.Session, bool) {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return stress.Session{}, false
	}

	closed := o.session.Clone()
	end := o.now().UTC()
	closed.EndTime = &end
	closed.Successful = hasDeEscalated
	final = final.Normalize()
	// 会话读数按时间不减，过期的结束读数沿用最后一条读数的时间
	if n := len(closed.Readings); n > 0 && final.Timestamp.Before(closed.Readings[n-1].Timestamp) {
		final.Timestamp = closed.Readings[n-1].Timestamp
	}
	closed.Readings = append(closed.Readings, final)
	startStress := o.startStress

	o.session = nil
	o.state = StateSessionEnded
	if hasDeEscalated {
		o.rewards.Streak++
	} else {
		o.rewards.Streak = 0
	}
	o.mu.Unlock()

	log.Printf("[conversation] session %s ended successful=%t strategies=%d", closed.ID, hasDeEscalated, len(closed.Strategies))

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var receipt string
	g, gctx := errgroup.WithContext(finalizeCtx)
	g.Go(func() error {
		finalStress := closed.Readings[len(closed.Readings)-1].Stress
		for _, s := range closed.Strategies {
			if err := o.deps.Recommender.RecordEffectiveness(gctx, s, startStress, finalStress); err != nil {
				log.Printf("[conversation] record effectiveness for %s failed: %v", s, err)
			}
		}
		return nil
	})
	if hasDeEscalated && o.deps.Minter != nil {
		g.Go(func() error {
			sig, err := o.deps.Minter.Mint(gctx, 1)
			if err != nil {
				log.Printf("[conversation] mint failed: %v", err)
				return nil
			}
			receipt = sig
			return nil
		})
	}
	_ = g.Wait()

	closed.MintReceipt = receipt
	if o.deps.Archive != nil {
		if err := o.deps.Archive.Save(finalizeCtx, closed); err != nil {
			log.Printf("[conversation] archive session %s failed: %v", closed.ID, err)
		}
	}

	o.mu.Lock()
	if receipt != "" {
		o.rewards.CalmTokens++
	}
	last := closed.Clone()
	o.lastSession = &last
	o.mu.Unlock()

	return closed, true
}

// Greet 直接追加一条助手问候并朗读，不经过生成器。
// 与对话轮次共用 turnMu，进行中的轮次结束后才会插入问候。
func (o *Orchestrator) Greet(ctx context.Context) (chat.Message, *speech.Completion) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.mu.Lock()
	sessionID := ""
	if o.session != nil {
		sessionID = o.session.ID
	}
	greeting := chat.NewMessage(sessionID, chat.RoleAssistant, GreetingMessage)
	o.messages = append(o.messages, greeting)
	o.mu.Unlock()

	return greeting, o.deps.Speaker.Speak(ctx, greeting.Content)
}

// StopSpeaking 打断当前播报。
func (o *Orchestrator) StopSpeaking() {
	o.deps.Speaker.Stop()
}

// Messages 返回消息记录的副本。
func (o *Orchestrator) Messages() []chat.Message {
	o.mu.RLock()
	defer o.mu.RUnlock()
	copied := make([]chat.Message, len(o.messages))
	copy(copied, o.messages)
	return copied
}

// CurrentSession 返回进行中的会话。
func (o *Orchestrator) CurrentSession() (stress.Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return stress.Session{}, false
	}
	return o.session.Clone(), true
}

// LastSession 返回最近结束的会话。
func (o *Orchestrator) LastSession() (stress.Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastSession == nil {
		return stress.Session{}, false
	}
	return o.lastSession.Clone(), true
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) Rewards() Rewards {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rewards
}

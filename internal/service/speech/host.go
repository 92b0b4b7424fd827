package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// DiscardPlayer 不输出声音，只记录音频大小，用于无声卡的服务端。
type DiscardPlayer struct{}

func (DiscardPlayer) Play(_ context.Context, audio []byte) error {
	log.Printf("[speech] discard %d bytes of audio", len(audio))
	return nil
}

// LogSynthesizer 把文本写入日志代替本地朗读。
type LogSynthesizer struct{}

func (LogSynthesizer) Speak(_ context.Context, text string) error {
	log.Printf("[speech] fallback voice: %s", text)
	return nil
}

// CommandPlayer 把音频写入临时文件后调用外部播放器，文件路径作为最后一个参数。
type CommandPlayer struct {
	Command []string
}

// NewCommandPlayer 解析以空格分隔的命令，例如 "afplay" 或 "mpg123 -q"。
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("player command is empty")
	}
	return &CommandPlayer{Command: fields}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, audio []byte) error {
	f, err := os.CreateTemp("", "anchor-*.mp3")
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}

	args := append(append([]string{}, p.Command[1:]...), f.Name())
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player %s: %w: %s", p.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CommandSynthesizer 调用系统语音命令朗读文本，例如 "say" 或 "espeak"。
type CommandSynthesizer struct {
	Command []string
}

func NewCommandSynthesizer(command string) (*CommandSynthesizer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("synthesizer command is empty")
	}
	return &CommandSynthesizer{Command: fields}, nil
}

func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	args := append(append([]string{}, s.Command[1:]...), text)
	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("synthesizer %s: %w: %s", s.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/sensing"
)

// scenario 描述一次离线演练。
type scenario struct {
	Initial  float64
	Drift    float64
	Seed     uint64
	Readings int
	Step     time.Duration
	Messages []string
}

var defaultScript = []string{
	"My heart is racing and I can't focus.",
	"Okay, I'm trying to slow down.",
	"I think I'm feeling a bit better now.",
}

type report struct {
	Transitions []analysis.Transition
	Session     stress.Session
	Ended       bool
}

// runScenario 在加速时钟下注入读数，并在均匀间隔处发送脚本消息。
func runScenario(ctx context.Context, sc scenario, p *pipeline.Pipeline, out io.Writer) (report, error) {
	if sc.Readings < 1 {
		return report{}, fmt.Errorf("readings must be positive, got %d", sc.Readings)
	}
	if sc.Step <= 0 {
		sc.Step = time.Second
	}

	// 让最后一个读数落在当前时间附近，对话时读数仍然新鲜
	clock := time.Now().UTC().Add(-time.Duration(sc.Readings) * sc.Step)
	source := sensing.NewSimulatedSource(sc.Initial, sc.Seed).WithClock(func() time.Time { return clock })
	source.SetDrift(sc.Drift)

	var rep report
	every := sc.Readings / (len(sc.Messages) + 1)
	next := 0
	started := false

	for i := 0; i < sc.Readings; i++ {
		clock = clock.Add(sc.Step)
		r, err := source.Read(ctx)
		if err != nil {
			return rep, err
		}
		if t, changed := p.Ingest(r); changed {
			rep.Transitions = append(rep.Transitions, t)
			fmt.Fprintf(out, "[%02d] level %s -> %s (mean %.2f)\n", i, t.From, t.To, t.MeanStress)
		}

		if !started {
			if _, err := p.Start(ctx); err != nil {
				return rep, err
			}
			started = true
		}

		if next < len(sc.Messages) && every > 0 && (i+1)%every == 0 {
			if err := sendScripted(ctx, p, out, sc.Messages[next]); err != nil {
				return rep, err
			}
			next++
		}
	}
	for ; next < len(sc.Messages); next++ {
		if err := sendScripted(ctx, p, out, sc.Messages[next]); err != nil {
			return rep, err
		}
	}

	rep.Session, rep.Ended = p.End(ctx)
	return rep, nil
}

func sendScripted(ctx context.Context, p *pipeline.Pipeline, out io.Writer, text string) error {
	turn, err := p.Send(ctx, text)
	if err != nil {
		return err
	}
	if turn.Speech != nil {
		if _, err := turn.Speech.Wait(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "you:    %s\n", turn.User.Content)
	if turn.Strategy != "" {
		fmt.Fprintf(out, "anchor: %s  [%s]\n", turn.Reply.Content, turn.Strategy.DisplayName())
	} else {
		fmt.Fprintf(out, "anchor: %s\n", turn.Reply.Content)
	}
	return nil
}

func printSummary(out io.Writer, rep report, now time.Time) error {
	if !rep.Ended {
		_, err := fmt.Fprintln(out, "No session was active.")
		return err
	}
	s := rep.Session
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tDURATION\tAVG STRESS\tREDUCTION\tSTRATEGIES\tSUCCESS\tRECEIPT")
	fmt.Fprintf(w, "%s\t%s\t%.2f\t%+.2f\t%d\t%t\t%s\n",
		s.ID,
		s.Duration(now).Round(time.Second),
		s.AverageStress(),
		s.StressReduction(),
		len(s.Strategies),
		s.Successful,
		receiptOrDash(s.MintReceipt),
	)
	return w.Flush()
}

func receiptOrDash(r string) string {
	if r == "" {
		return "-"
	}
	return r
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/config"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ai"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ledger"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/speech"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/strategy"
	"github.com/zhouzirui/anchor-coach/backend/internal/store"
)

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.Float64("initial", 0.85, "initial stress in [0,1]")
	f.Float64("drift", -0.02, "mean stress change per reading")
	f.Uint64("seed", 1, "random seed for the simulated sensor")
	f.Int("readings", 40, "number of readings to inject")
	f.Duration("step", time.Second, "simulated time between readings")
	f.StringArray("message", nil, "scripted user message (repeatable)")
	f.Bool("live", false, "use the model, store and ledger from the environment")
	f.String("out", "", "write the closed session as JSON to this file")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a coaching session end to end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		sc := scenario{}
		sc.Initial, _ = f.GetFloat64("initial")
		sc.Drift, _ = f.GetFloat64("drift")
		sc.Seed, _ = f.GetUint64("seed")
		sc.Readings, _ = f.GetInt("readings")
		sc.Step, _ = f.GetDuration("step")
		sc.Messages, _ = f.GetStringArray("message")
		if len(sc.Messages) == 0 {
			sc.Messages = defaultScript
		}
		live, _ := f.GetBool("live")
		outPath, _ := f.GetString("out")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := buildPipeline(ctx, live)
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		rep, err := runScenario(ctx, sc, p, out)
		if err != nil {
			return fmt.Errorf("run scenario: %w", err)
		}
		fmt.Fprintln(out)
		if err := printSummary(out, rep, time.Now()); err != nil {
			return err
		}

		if outPath != "" && rep.Ended {
			data, err := json.MarshalIndent(rep.Session, "", "  ")
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
		}
		return nil
	},
}

// buildPipeline 默认全部使用内存实现，live 模式下按环境变量接入模型、存储与代币发放。
func buildPipeline(ctx context.Context, live bool) (*pipeline.Pipeline, func(), error) {
	kv := store.KV(store.NewMemoryStore())
	var generator *ai.Generator
	var minter conversation.Minter

	if live {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("load configuration: %w", err)
		}
		kv, err = store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		generator = ai.NewGenerator(nil, ai.Config{Timeout: cfg.AI.Timeout, HistoryLimit: cfg.AI.HistoryLimit})
		if cfg.AI.Enabled() {
			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				kv.Close()
				return nil, nil, fmt.Errorf("init chat model: %w", err)
			}
			generator = ai.NewGenerator(chatModel, ai.Config{Timeout: cfg.AI.Timeout, HistoryLimit: cfg.AI.HistoryLimit})
		}
		if cfg.Ledger.MintAddress != "" {
			minter = ledger.NewSimulatedMinter(ledger.Config{Network: cfg.Ledger.Network, MintAddress: cfg.Ledger.MintAddress})
		}
	} else {
		generator = ai.NewGenerator(nil, ai.Config{})
		minter = ledger.NewSimulatedMinter(ledger.Config{MintAddress: "simulated-calm-mint"})
	}

	speaker := speech.NewOrchestrator(nil, speech.LogSynthesizer{}, speech.DiscardPlayer{}, nil)
	conv := conversation.NewOrchestrator(conversation.Deps{
		Generator:   generator,
		Recommender: strategy.NewService(strategy.NewKVHistory(kv), nil),
		Speaker:     speaker,
		Minter:      minter,
		Archive:     store.NewSessionArchive(kv),
	})
	p := pipeline.New(analysis.NewMonitor(analysis.Config{}), conv, nil, pipeline.Options{})

	cleanup := func() {
		speaker.Stop()
		kv.Close()
	}
	return p, cleanup, nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/config"
	"github.com/zhouzirui/anchor-coach/backend/internal/handler"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/provider/elevenlabs"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ai"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/companion"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/conversation"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/ledger"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/pipeline"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/sensing"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/speech"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/strategy"
	"github.com/zhouzirui/anchor-coach/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	kv, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer kv.Close()

	chatModel := newChatModel(ctx, cfg.AI)
	generator := ai.NewGenerator(chatModel, ai.Config{Timeout: cfg.AI.Timeout, HistoryLimit: cfg.AI.HistoryLimit})
	recommender := strategy.NewService(strategy.NewKVHistory(kv), newScorer(ctx, cfg.Personalization, chatModel))
	recommender.SetScoreTimeout(cfg.AI.Timeout)
	speaker := newSpeaker(cfg.Speech)

	var minter conversation.Minter
	if cfg.Ledger.MintAddress != "" {
		minter = ledger.NewSimulatedMinter(ledger.Config{Network: cfg.Ledger.Network, MintAddress: cfg.Ledger.MintAddress})
		log.Printf("CALM token rewards enabled on %s", cfg.Ledger.Network)
	} else {
		log.Println("CALM_TOKEN_MINT 未配置，跳过代币发放")
	}

	archive := store.NewSessionArchive(kv)
	hub := companion.NewHub(companion.DefaultOptions())
	conv := conversation.NewOrchestrator(conversation.Deps{
		Generator:   generator,
		Recommender: recommender,
		Speaker:     speaker,
		Minter:      minter,
		Archive:     archive,
		HeartRate:   hub,
	})
	p := pipeline.New(analysis.NewMonitor(analysis.Config{}), conv, hub, pipeline.Options{
		Greet:            cfg.Session.Greet,
		AutoStartOnAlert: cfg.Session.AutoStartOnAlert,
	})

	router := handler.NewRouter(handler.Deps{
		Pipeline: p,
		Archive:  archive,
		History:  recommender,
		Features: map[string]bool{
			"ai":              generator.Configured(),
			"speech":          cfg.Speech.Enabled(),
			"personalization": cfg.Personalization.LLMEnabled && chatModel != nil,
			"ledger":          minter != nil,
			"simulatedSensor": cfg.Sensing.Simulate,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return startServer(gctx, cfg.Server, router)
	})
	if cfg.Sensing.Simulate {
		source := sensing.NewSimulatedSource(cfg.Sensing.Initial, cfg.Sensing.Seed)
		sampler := sensing.NewSampler(source, func(r stress.Reading) { p.Ingest(r) }, cfg.Sensing.Interval)
		log.Printf("simulated sensor enabled, interval=%s", cfg.Sensing.Interval)
		g.Go(func() error {
			return sampler.Run(gctx)
		})
	}

	err = g.Wait()
	speaker.Stop()
	hub.CloseAll()
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// newChatModel 返回 nil 表示使用固定回复。
func newChatModel(ctx context.Context, cfg config.AIConfig) model.ChatModel {
	if !cfg.Enabled() {
		log.Printf("%s 凭证未配置，使用本地固定回复", cfg.Provider)
		return nil
	}
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		log.Printf("warning: failed to initialize %s chat model: %v", cfg.Provider, err)
		log.Println("continuing with canned responses")
		return nil
	}
	log.Printf("AI chat model initialized (provider=%s)", cfg.Provider)
	return chatModel
}

func newScorer(ctx context.Context, cfg config.PersonalizationConfig, chatModel model.ChatModel) strategy.Scorer {
	if !cfg.LLMEnabled {
		log.Println("Personalized strategy scoring disabled by configuration")
		return nil
	}
	if chatModel == nil {
		log.Println("Personalized strategy scoring requested but chat model unavailable, using baseline")
		return nil
	}
	scorer, err := strategy.NewLLMScorer(ctx, chatModel)
	if err != nil || scorer == nil {
		log.Printf("warning: failed to initialize strategy scorer: %v", err)
		return nil
	}
	log.Println("Personalized strategy scoring enabled")
	return scorer
}

func newSpeaker(cfg config.SpeechConfig) *speech.Orchestrator {
	var provider speech.Provider
	if cfg.Enabled() {
		settings := elevenlabs.DefaultVoiceSettings()
		if cfg.Stability != nil {
			settings.Stability = *cfg.Stability
		}
		if cfg.SimilarityBoost != nil {
			settings.SimilarityBoost = *cfg.SimilarityBoost
		}
		provider = elevenlabs.NewClient(elevenlabs.Config{
			APIKey:     cfg.APIKey,
			VoiceID:    cfg.VoiceID,
			ModelID:    cfg.ModelID,
			BaseURL:    cfg.BaseURL,
			Settings:   &settings,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		})
		log.Println("ElevenLabs speech synthesis enabled")
	} else {
		log.Println("ElevenLabs 凭证未配置，只使用本地合成")
	}

	var player speech.Player
	if cfg.PlayerCommand != "" {
		p, err := speech.NewCommandPlayer(cfg.PlayerCommand)
		if err != nil {
			log.Printf("warning: invalid SPEECH_PLAYER_CMD: %v", err)
		} else {
			player = p
		}
	}

	var fallback speech.Synthesizer
	if cfg.FallbackCommand != "" {
		s, err := speech.NewCommandSynthesizer(cfg.FallbackCommand)
		if err != nil {
			log.Printf("warning: invalid SPEECH_FALLBACK_CMD: %v", err)
		} else {
			fallback = s
		}
	}

	return speech.NewOrchestrator(provider, fallback, player, nil)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Anchor backend listening on %s", serverCfg.Addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

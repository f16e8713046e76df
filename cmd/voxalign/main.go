// Command voxalign is the speaker-attributed transcription server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nocturneflow/voxalign/internal/config"
	"github.com/nocturneflow/voxalign/internal/health"
	"github.com/nocturneflow/voxalign/internal/observe"
	"github.com/nocturneflow/voxalign/internal/pipeline"
	"github.com/nocturneflow/voxalign/internal/polish"
	"github.com/nocturneflow/voxalign/internal/resilience"
	"github.com/nocturneflow/voxalign/internal/retrieval"
	"github.com/nocturneflow/voxalign/internal/server"
	"github.com/nocturneflow/voxalign/pkg/provider/asr"
	"github.com/nocturneflow/voxalign/pkg/provider/asr/whisper"
	"github.com/nocturneflow/voxalign/pkg/provider/diar/pyannote"
	oaembed "github.com/nocturneflow/voxalign/pkg/provider/embeddings/openai"
	"github.com/nocturneflow/voxalign/pkg/provider/emotion/sidecar"
	"github.com/nocturneflow/voxalign/pkg/provider/llm"
	"github.com/nocturneflow/voxalign/pkg/provider/llm/anyllm"
	oaillm "github.com/nocturneflow/voxalign/pkg/provider/llm/openai"
	"github.com/nocturneflow/voxalign/pkg/store/postgres"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxalign: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxalign: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("voxalign starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"asr_backend", cfg.ASR.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxalign",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	asrProvider, err := buildASR(cfg)
	if err != nil {
		slog.Error("failed to build ASR provider", "err", err)
		return 1
	}

	var checkers []health.Checker
	if cfg.ASR.Backend == config.ASRWhisperHTTP {
		checkers = append(checkers, health.HTTPChecker("whisper", cfg.ASR.ServerURL, nil))
	}

	pipeOpts := []pipeline.Option{}

	if cfg.Diarization.ServerURL != "" {
		diarizer, err := pyannote.New(cfg.Diarization.ServerURL,
			pyannote.WithTimeout(time.Duration(cfg.Diarization.TimeoutSeconds)*time.Second))
		if err != nil {
			slog.Error("failed to build diarizer", "err", err)
			return 1
		}
		pipeOpts = append(pipeOpts, pipeline.WithDiarizer(diarizer))
		checkers = append(checkers, health.HTTPChecker("diarizer", cfg.Diarization.ServerURL, nil))
		slog.Info("diarizer configured", "server_url", cfg.Diarization.ServerURL,
			"strategy", cfg.Diarization.Strategy)
	}

	var st *postgres.Store
	if cfg.Storage.PostgresDSN != "" {
		st, err = postgres.NewStore(ctx, cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer st.Close()
		checkers = append(checkers, health.Checker{Name: "postgres", Check: st.Ping})
		slog.Info("postgres store connected")
	}

	if cfg.Polish.Primary.Provider != "" {
		polisher, err := buildPolisher(cfg, st)
		if err != nil {
			slog.Error("failed to build polisher", "err", err)
			return 1
		}
		pipeOpts = append(pipeOpts, pipeline.WithPolisher(polisher))
		slog.Info("polisher configured",
			"primary", cfg.Polish.Primary.Provider,
			"fallbacks", len(cfg.Polish.Fallbacks))
	}

	if cfg.Emotion.ServerURL != "" {
		classifier, err := sidecar.New(cfg.Emotion.ServerURL)
		if err != nil {
			slog.Error("failed to build emotion classifier", "err", err)
			return 1
		}
		pipeOpts = append(pipeOpts, pipeline.WithClassifier(classifier))
		checkers = append(checkers, health.HTTPChecker("emotion", cfg.Emotion.ServerURL, nil))
		slog.Info("emotion classifier configured", "server_url", cfg.Emotion.ServerURL)
	}

	pipe := pipeline.New(asrProvider, pipeline.Config{
		Strategy:     string(cfg.Diarization.Strategy),
		MinTurn:      cfg.Diarization.MinTurnLength,
		MergeGap:     cfg.Diarization.MergeGap,
		Resolution:   cfg.Diarization.Resolution,
		SearchRadius: cfg.Diarization.SearchRadius,
		Budget:       time.Duration(cfg.Limits.PipelineTimeoutSeconds) * time.Second,
	}, pipeOpts...)

	srvOpts := []server.Option{
		server.WithHealth(health.New(checkers...)),
		server.WithMetricsHandler(promhttp.Handler()),
	}
	if st != nil {
		srvOpts = append(srvOpts, server.WithStore(st))
	}
	srv := server.New(pipe, server.Config{
		MaxConcurrent:  cfg.Limits.MaxConcurrent,
		MaxUploadMB:    cfg.Limits.MaxUploadMB,
		DefaultDiarize: cfg.Diarization.Enabled,
		DefaultPolish:  cfg.Polish.Enabled,
		DefaultEmotion: cfg.Emotion.Enabled,
	}, srvOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildASR constructs the recognition provider named in the config.
func buildASR(cfg *config.Config) (asr.Provider, error) {
	switch cfg.ASR.Backend {
	case config.ASRWhisperHTTP:
		opts := []whisper.Option{
			whisper.WithTimeout(time.Duration(cfg.ASR.TimeoutSeconds) * time.Second),
		}
		if cfg.ASR.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.ASR.Model))
		}
		if cfg.ASR.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.ASR.Language))
		}
		return whisper.New(cfg.ASR.ServerURL, opts...)
	case config.ASRWhisperNative:
		var opts []whisper.NativeOption
		if cfg.ASR.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(cfg.ASR.Language))
		}
		return whisper.NewNative(cfg.ASR.ModelPath, opts...)
	default:
		return nil, fmt.Errorf("unknown asr backend %q", cfg.ASR.Backend)
	}
}

// buildLLM constructs one chat-completion backend. The "openai" provider uses
// the native SDK; everything else goes through any-llm.
func buildLLM(entry config.LLMEntry) (llm.Provider, error) {
	if entry.Provider == "openai" {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	}
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Provider, entry.Model, opts...)
}

// buildPolisher assembles the LLM fallback chain and, when retrieval is
// enabled, the exemplar source behind it.
func buildPolisher(cfg *config.Config, st *postgres.Store) (*polish.Polisher, error) {
	primary, err := buildLLM(cfg.Polish.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary llm %q: %w", cfg.Polish.Primary.Provider, err)
	}
	group := resilience.NewFallbackGroup[llm.Provider](primary,
		cfg.Polish.Primary.Provider, resilience.Settings{Name: "polish-llm"})
	for _, entry := range cfg.Polish.Fallbacks {
		fb, err := buildLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback llm %q: %w", entry.Provider, err)
		}
		group.AddFallback(entry.Provider, fb)
	}

	opts := []polish.Option{
		polish.WithTemperature(cfg.Polish.Temperature),
		polish.WithMaxTokens(cfg.Polish.MaxTokens),
		polish.WithMinSimilarity(cfg.Polish.MinSimilarity),
	}

	if cfg.Retrieval.Enabled {
		if st == nil {
			return nil, errors.New("retrieval requires a configured postgres store")
		}
		embedder, err := oaembed.New(cfg.Retrieval.APIKey, cfg.Retrieval.Model)
		if err != nil {
			return nil, fmt.Errorf("embeddings provider: %w", err)
		}
		opts = append(opts, polish.WithExemplarSource(retrieval.New(embedder, st), cfg.Retrieval.TopK))
		slog.Info("exemplar retrieval enabled", "model", cfg.Retrieval.Model, "top_k", cfg.Retrieval.TopK)
	}

	return polish.New(group, opts...), nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/kwang/interview-server/internal/audio"
	"github.com/kwang/interview-server/internal/config"
	"github.com/kwang/interview-server/internal/ingest"
	"github.com/kwang/interview-server/internal/interview"
	"github.com/kwang/interview-server/internal/llm"
	"github.com/kwang/interview-server/internal/logging"
	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/server"
	"github.com/kwang/interview-server/internal/session"
	"github.com/kwang/interview-server/internal/speech"
	"github.com/kwang/interview-server/internal/storage"
	"github.com/kwang/interview-server/internal/summary"
	"github.com/kwang/interview-server/internal/transcribe"
)

const janitorInterval = time.Hour

func main() {
	cfg, warnings, err := config.Load(envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	_, logCloser := logging.Setup(cfg.Logging)
	defer func() { _ = logCloser.Close() }()

	log.Println("interview-server: starting")
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	catalog, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = catalog.Close() }()

	hub := server.NewHub()
	store := session.NewStore()
	archive := recordings.NewArchive(cfg.RecordingsDir, cfg.CombinedAudioFilename, cfg.CombinedVideoFilename)

	var tool audio.Tool
	if ff := audio.NewFFmpeg(cfg.FFmpegPath); ff.Available() {
		tool = ff
	} else {
		warnings = append(warnings, fmt.Sprintf("%s not found. Uploads are stored unconverted and combining is unavailable.", cfg.FFmpegPath))
		log.Printf("warning: %s not found, media conversion disabled", cfg.FFmpegPath)
	}

	responder := interview.NewResponder(interview.DefaultScript(), cfg.ParsedExternalTimeout(), conversationSources(cfg)...)

	var summarizer interview.Summarizer
	if cfg.Summary.Enabled {
		summarizer = summary.New(cfg.Summary, func(provider, model string) (llm.Client, error) {
			key := cfg.APIKey(provider)
			if key == "" {
				return nil, fmt.Errorf("no API key for summary provider %q", provider)
			}
			return llm.NewClient(provider, key, model)
		}, catalog)
	}

	orch := interview.NewOrchestrator(store, responder, recordings.NewCombiner(archive, tool, cfg.ParsedCombineTimeout()), interview.Options{
		Catalog:     catalog,
		Transcript:  storage.NewTranscriptWriter(cfg.RecordingsDir),
		Summarizer:  summarizer,
		Events:      hub,
		IdleTimeout: cfg.ParsedIdleTimeout(),
	})

	if cfg.Transcription.Provider == "deepgram" {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	}
	var transcriber transcribe.Transcriber
	if tr, err := transcribe.New(cfg.Transcription, cfg.APIKey(cfg.Transcription.Provider)); err != nil {
		log.Printf("warning: transcription disabled: %v", err)
	} else {
		transcriber = tr
	}

	pipeline := ingest.NewPipeline(store, archive, tool, transcriber, orch, ingest.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxVideoBytes:  cfg.MaxVideoBytes(),
		StorageFormat:  audio.Format(cfg.AudioFormat),
		Timeout:        cfg.ParsedExternalTimeout(),
		Catalog:        catalog,
		Events:         hub,
	})

	var speaker server.Speaker
	if cfg.OpenAIAPIKey != "" {
		speaker = speech.New(speech.NewOpenAI(cfg.OpenAIAPIKey, cfg.Speech.Model, ""), pipeline, speech.Options{
			DefaultVoice: cfg.Speech.Voice,
			CacheSize:    cfg.Speech.CacheSize,
			Timeout:      cfg.ParsedExternalTimeout(),
		})
	}

	handler, err := server.Handler(staticFS(cfg.StaticDir), server.Deps{
		Hub:            hub,
		Conversation:   orch,
		Ingest:         pipeline,
		Speech:         speaker,
		Recordings:     archive,
		Catalog:        catalog,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxVideoBytes:  cfg.MaxVideoBytes(),
		ActiveSessions: store.Len,
		Warnings:       func() []string { return warnings },
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	if age := cfg.CleanupAge(); age > 0 {
		go runJanitor(ctx, archive, age, store, janitorInterval)
	}

	log.Printf("interview-server: listening on %s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("interview-server: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("warning: pending summaries abandoned at shutdown")
	}
}

// conversationSources returns the external chat source when its provider
// is configured; the scripted interviewer is always the fallback.
func conversationSources(cfg config.Config) []interview.ResponseSource {
	provider, model, err := llm.ParseModel(cfg.Conversation.Model)
	if err != nil {
		return nil
	}
	key := cfg.APIKey(provider)
	if key == "" {
		return nil
	}

	opts := []llm.Option{llm.WithTemperature(cfg.Conversation.Temperature)}
	if cfg.Conversation.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(cfg.Conversation.MaxTokens))
	}
	c, err := llm.NewClient(provider, key, model, opts...)
	if err != nil {
		log.Printf("warning: conversation model unavailable, using the script: %v", err)
		return nil
	}
	return []interview.ResponseSource{interview.NewExternal(c, cfg.Conversation.SystemPrompt)}
}

func staticFS(dir string) fs.FS {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Printf("warning: static directory %q not found, serving API only", dir)
		return nil
	}
	return os.DirFS(dir)
}

type liveSessions interface {
	Get(sessionID string) (*session.Session, bool)
}

// runJanitor prunes old session directories at start and then every
// interval. Live sessions are never pruned.
func runJanitor(ctx context.Context, archive *recordings.Archive, age time.Duration, live liveSessions, interval time.Duration) {
	prune := func() {
		removed, err := archive.Prune(age, func(id string) bool {
			_, ok := live.Get(id)
			return ok
		})
		if err != nil {
			log.Printf("janitor: prune failed: %v", err)
		}
		if len(removed) > 0 {
			log.Printf("janitor: removed %d old sessions", len(removed))
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kwang/interview-server/internal/recordings"
)

var ErrEmptyText = errors.New("speech: empty text")

// Provider is the external text-to-speech capability.
type Provider interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Persister stores interviewer speech for a session.
type Persister interface {
	PersistInterviewerAudio(ctx context.Context, sessionID string, data []byte, text, voice string) (recordings.Record, error)
}

type Request struct {
	Text      string
	Voice     string
	SessionID string
}

type Result struct {
	Audio     []byte
	Cached    bool
	Persisted bool
	Record    *recordings.Record
	// PersistErr is set when the audio was produced but could not be saved.
	PersistErr error
}

type Options struct {
	DefaultVoice string
	CacheSize    int
	Timeout      time.Duration
}

type Synthesizer struct {
	provider  Provider
	persister Persister

	defaultVoice string
	timeout      time.Duration

	cache *cache
	group singleflight.Group
}

func New(provider Provider, persister Persister, opts Options) *Synthesizer {
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = "alloy"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		provider:     provider,
		persister:    persister,
		defaultVoice: opts.DefaultVoice,
		timeout:      opts.Timeout,
		cache:        newCache(opts.CacheSize),
	}
}

// Synthesize returns speech for req.Text, from the cache when possible.
// When req.SessionID is set the audio is also stored as interviewer media;
// a storage failure is reported in the result, not as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	voice := req.Voice
	if voice == "" {
		voice = s.defaultVoice
	}

	data, cached, err := s.lookup(ctx, cacheKey{text: text, voice: voice})
	if err != nil {
		return Result{}, err
	}

	res := Result{Audio: data, Cached: cached}
	if req.SessionID == "" || s.persister == nil {
		return res, nil
	}

	rec, err := s.persister.PersistInterviewerAudio(ctx, req.SessionID, data, text, voice)
	if err != nil {
		slog.Warn("speech: persist interviewer audio failed", "session_id", req.SessionID, "error", err)
		res.PersistErr = err
		return res, nil
	}
	res.Persisted = true
	res.Record = &rec
	return res, nil
}

func (s *Synthesizer) lookup(ctx context.Context, key cacheKey) ([]byte, bool, error) {
	if data, ok := s.cache.get(key); ok {
		return data, true, nil
	}
	if s.provider == nil {
		return nil, false, errors.New("speech: no provider configured")
	}

	ch := s.group.DoChan(key.voice+"\x00"+key.text, func() (any, error) {
		if data, ok := s.cache.get(key); ok {
			return data, nil
		}

		// The call is shared; one caller hanging up must not fail the rest.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		data, err := s.provider.Synthesize(callCtx, key.text, key.voice)
		if err != nil {
			return nil, fmt.Errorf("synthesize speech: %w", err)
		}
		if len(data) == 0 {
			return nil, errors.New("synthesize speech: empty audio")
		}
		s.cache.put(key, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.([]byte), false, nil
	}
}

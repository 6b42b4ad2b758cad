package interview

import (
	"context"
	"log/slog"
	"time"
)

// Responder tries each source in order and returns the first reply. The
// scripted source always closes the chain.
type Responder struct {
	sources  []ResponseSource
	fallback *Scripted
	timeout  time.Duration
}

// NewResponder builds the chain external... -> scripted. Nil sources are
// skipped.
func NewResponder(script *Script, timeout time.Duration, external ...ResponseSource) *Responder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Responder{fallback: NewScripted(script), timeout: timeout}
	for _, src := range external {
		if src != nil {
			r.sources = append(r.sources, src)
		}
	}
	return r
}

func (r *Responder) Respond(ctx context.Context, req Request) Reply {
	for _, src := range r.sources {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		reply, err := src.Respond(callCtx, req)
		cancel()
		if err == nil {
			return reply
		}
		slog.Warn("responder: source failed, falling back", "source", src.Name(), "error", err)
	}

	reply, _ := r.fallback.Respond(ctx, req)
	return reply
}

package blograg

import (
	"context"
	"fmt"
	"sync"

	"github.com/flarexio/blograg/llm"
)

// ChunkStream is a lazy, forward-only sequence of answer fragments. It has a
// single consumer and cannot be restarted; once Next returns false it keeps
// returning false. Close must always be called.
type ChunkStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

func newRelay(ctx context.Context, cancel context.CancelFunc, upstream llm.TokenStream) *relay {
	return &relay{
		ctx:      ctx,
		cancel:   cancel,
		upstream: upstream,
		state:    StateStreaming,
	}
}

// relay forwards upstream tokens as they arrive. Its context is derived from
// the caller's request, so a disconnect stops the relay before the next pull.
type relay struct {
	ctx      context.Context
	cancel   context.CancelFunc
	upstream llm.TokenStream

	state   State
	current string
	err     error
	chunks  int

	closeOnce sync.Once
	closeErr  error
}

func (r *relay) fail(err error) {
	r.state = StateFailed
	r.current = ""
	r.err = err
}

func (r *relay) Next() bool {
	if r.state != StateStreaming {
		return false
	}

	if err := r.ctx.Err(); err != nil {
		r.fail(fmt.Errorf("%w: %w", ErrStreamInterrupted, context.Cause(r.ctx)))
		return false
	}

	if r.upstream.Next() {
		r.current = r.upstream.Current()
		r.chunks++
		return true
	}

	if err := r.upstream.Err(); err != nil {
		r.fail(fmt.Errorf("%w: %w", ErrStreamInterrupted, err))
		return false
	}

	if err := r.ctx.Err(); err != nil {
		r.fail(fmt.Errorf("%w: %w", ErrStreamInterrupted, context.Cause(r.ctx)))
		return false
	}

	r.state = StateComplete
	r.current = ""
	return false
}

func (r *relay) Current() string {
	return r.current
}

func (r *relay) Err() error {
	return r.err
}

func (r *relay) State() State {
	return r.state
}

func (r *relay) Chunks() int {
	return r.chunks
}

func (r *relay) Close() error {
	r.closeOnce.Do(func() {
		if r.state == StateStreaming {
			r.fail(fmt.Errorf("%w: closed before completion", ErrStreamInterrupted))
		}

		r.cancel()
		r.closeErr = r.upstream.Close()
	})

	return r.closeErr
}

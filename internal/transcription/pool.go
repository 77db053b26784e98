package transcription

import (
	"context"
	"fmt"

	"github.com/rapidaai/mesh/internal/commons"
)

// Pool bounds concurrent provider calls to MaxInFlight, per spec.md
// §4.4's "Concurrency is bounded by a semaphore of capacity MaxInFlight".
type Pool struct {
	provider    Provider
	logger      commons.Logger
	sem         chan struct{}
	maxInFlight int
}

// NewPool builds a Pool with the given concurrency ceiling.
func NewPool(provider Provider, maxInFlight int, logger commons.Logger) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Pool{
		provider:    provider,
		logger:      logger,
		sem:         make(chan struct{}, maxInFlight),
		maxInFlight: maxInFlight,
	}
}

// WouldBlock reports whether the semaphore is fully consumed right now
// — the trigger for the §4.4 `slow` backpressure signal. It does not
// reserve a slot; callers should treat this as advisory.
func (p *Pool) WouldBlock() bool {
	return len(p.sem) >= p.maxInFlight
}

// Transcribe acquires a semaphore permit (blocking if the pool is full),
// invokes the provider, and releases the permit on return. A provider
// error yields a nil Result, never a panic or dropped goroutine.
func (p *Pool) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (*Result, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	result, err := p.provider.Transcribe(ctx, pcm, sampleRate, language)
	if err != nil {
		p.logger.Warnf("transcription: provider error: %v", err)
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return result, nil
}

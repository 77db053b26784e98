package transcription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/mesh/internal/commons"
)

type blockingProvider struct {
	inflight  int32
	maxSeen   int32
	release   chan struct{}
}

func (p *blockingProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (*Result, error) {
	n := atomic.AddInt32(&p.inflight, 1)
	for {
		old := atomic.LoadInt32(&p.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&p.maxSeen, old, n) {
			break
		}
	}
	<-p.release
	atomic.AddInt32(&p.inflight, -1)
	return &Result{Text: "ok"}, nil
}

func TestPool_BoundsConcurrency(t *testing.T) {
	logger, _ := commons.NewDevelopmentLogger()
	provider := &blockingProvider{release: make(chan struct{})}
	pool := NewPool(provider, 2, logger)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Transcribe(context.Background(), nil, 16000, "")
		}()
	}

	// Give goroutines time to pile up against the semaphore.
	time.Sleep(50 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&provider.maxSeen), int32(2))
}

type errorProvider struct{}

func (errorProvider) Transcribe(context.Context, []byte, int, string) (*Result, error) {
	return nil, assert.AnError
}

func TestPool_ProviderErrorReturnsNilResult(t *testing.T) {
	logger, _ := commons.NewDevelopmentLogger()
	pool := NewPool(errorProvider{}, 1, logger)

	result, err := pool.Transcribe(context.Background(), nil, 16000, "")
	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestPool_WouldBlock(t *testing.T) {
	logger, _ := commons.NewDevelopmentLogger()
	provider := &blockingProvider{release: make(chan struct{})}
	pool := NewPool(provider, 1, logger)

	assert.False(t, pool.WouldBlock())

	done := make(chan struct{})
	go func() {
		_, _ = pool.Transcribe(context.Background(), nil, 16000, "")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, pool.WouldBlock())

	close(provider.release)
	<-done
	require.Eventually(t, func() bool { return !pool.WouldBlock() }, time.Second, 5*time.Millisecond)
}

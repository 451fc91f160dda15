package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolReportsEveryJobBySequence(t *testing.T) {
	var mu sync.Mutex
	got := make(map[int]int)
	errs := 0
	p := newWorkerPool[int, int](context.Background(), 3, 2,
		func(_ context.Context, n int) (int, error) {
			if n == 4 {
				return 0, errors.New("four")
			}
			return n * n, nil
		},
		func(seq, n, r int, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				return
			}
			got[seq] = r
		},
	)
	for i := 0; i < 6; i++ {
		seq, err := p.Submit(context.Background(), i)
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}
	p.Drain()

	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 4, 3: 9, 5: 25}, got)
	assert.Equal(t, 1, errs)
	assert.Zero(t, p.Busy())
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	p := newWorkerPool[int, struct{}](context.Background(), 1, 1,
		func(context.Context, int) (struct{}, error) {
			<-block
			return struct{}{}, nil
		}, nil)

	// One job running, one queued: the third cannot be placed.
	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Submit(ctx, 1)
	require.NoError(t, err)
	_, err = p.Submit(ctx, 2)
	require.NoError(t, err)
	cancel()
	_, err = p.Submit(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	p.Drain()
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounded_FIFO(t *testing.T) {
	q := NewBounded[int](3)
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		require.NoError(t, q.Enqueue(ctx, round))
		v, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, round, v)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}
	assert.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		v, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestBounded_EnqueueBlocksWhenFull(t *testing.T) {
	q := NewBounded[string](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, "b") }()

	select {
	case err := <-done:
		t.Fatalf("Enqueue on full queue returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	v, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not resume after Dequeue")
	}

	v, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestBounded_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewBounded[int](2)
	got := make(chan int, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), 42))

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Dequeue was not woken by Enqueue")
	}
}

func TestBounded_ContextCancellation(t *testing.T) {
	q := NewBounded[int](1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Enqueue(context.Background(), 1))
	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	assert.ErrorIs(t, q.Enqueue(ctx2, 2), context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestBounded_CloseDrainsThenEnds(t *testing.T) {
	q := NewBounded[int](4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Enqueue(ctx, 3), ErrEnded)

	for _, want := range []int{1, 2} {
		v, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEnded)
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEnded, "ended state is sticky")
}

func TestBounded_CloseWakesBlockedCallers(t *testing.T) {
	q := NewBounded[int](1)
	errs := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errs <- err
	}()
	time.Sleep(5 * time.Millisecond)
	q.Close()

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrEnded))
	case <-time.After(time.Second):
		t.Fatal("blocked Dequeue not woken by Close")
	}
}

func TestBounded_ClearDiscardsAndReopens(t *testing.T) {
	q := NewBounded[int](2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))
	q.Close()

	q.Clear()
	assert.Zero(t, q.Len())
	assert.False(t, q.Closed())

	require.NoError(t, q.Enqueue(ctx, 3))
	v, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestBounded_ClearUnblocksProducer(t *testing.T) {
	q := NewBounded[int](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, 2) }()
	time.Sleep(5 * time.Millisecond)
	q.Clear()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer not unblocked by Clear")
	}
	v, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestNewBounded_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewBounded[int](0).Cap())
	assert.Equal(t, 5, NewBounded[int](5).Cap())
}

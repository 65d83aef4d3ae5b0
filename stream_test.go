package blograg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelayForwardsInOrder(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	upstream := &fakeTokenStream{tokens: []string{"1", "2", "3"}}

	r := newRelay(ctx, cancel, upstream)

	var got []string
	for r.Next() {
		got = append(got, r.Current())
	}

	assert.Equal([]string{"1", "2", "3"}, got)
	assert.NoError(r.Err())
	assert.Equal(StateComplete, r.State())
	assert.Empty(r.Current())

	assert.NoError(r.Close())
	assert.NoError(r.Close())
	assert.True(upstream.closed)
	assert.Error(ctx.Err(), "closing the relay cancels upstream generation")
}

func TestRelayCloseBeforeCompletion(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	upstream := &fakeTokenStream{tokens: []string{"1", "2", "3"}}

	r := newRelay(ctx, cancel, upstream)

	assert.True(r.Next())
	assert.NoError(r.Close())

	assert.Equal(StateFailed, r.State())
	assert.ErrorIs(r.Err(), ErrStreamInterrupted)
	assert.False(r.Next())
	assert.Equal(1, upstream.pulls)
}

func TestRelayDeadline(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	<-ctx.Done()

	upstream := &fakeTokenStream{tokens: []string{"1"}}
	r := newRelay(ctx, cancel, upstream)

	assert.False(r.Next())
	assert.ErrorIs(r.Err(), ErrStreamInterrupted)
	assert.True(errors.Is(r.Err(), context.DeadlineExceeded))
	assert.Equal(0, upstream.pulls)
}

func TestRelayEmptyUpstream(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	r := newRelay(ctx, cancel, &fakeTokenStream{})

	assert.False(r.Next())
	assert.NoError(r.Err())
	assert.Equal(StateComplete, r.State())
	assert.Equal(0, r.Chunks())
	assert.NoError(r.Close())
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	assert.Nil(t, New(0, 1))
	require.NoError(t, l.Wait(context.Background()))
	assert.True(t, l.Allow())
}

func TestLimiterHonoursBurst(t *testing.T) {
	l := New(time.Hour, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestWaitReturnsWhenContextExpires(t *testing.T) {
	l := New(time.Hour, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

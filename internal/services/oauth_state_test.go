package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCodec_RoundTripIsOneTime(t *testing.T) {
	codec := NewStateCodec("secret", time.Minute, NewMemoryStateStore())
	ctx := context.Background()

	state, err := codec.Issue("user-1")
	require.NoError(t, err)

	owner, err := codec.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)

	_, err = codec.Consume(ctx, state)
	assert.True(t, errors.Is(err, errStateReused), "second use must fail, got %v", err)
}

func TestStateCodec_Expired(t *testing.T) {
	codec := NewStateCodec("secret", time.Minute, nil)
	issued := time.Now()
	codec.now = func() time.Time { return issued }
	state, err := codec.Issue("user-1")
	require.NoError(t, err)

	codec.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = codec.Consume(context.Background(), state)
	assert.Error(t, err)
}

func TestStateCodec_WrongSecretAndGarbage(t *testing.T) {
	issuer := NewStateCodec("secret-a", time.Minute, nil)
	verifier := NewStateCodec("secret-b", time.Minute, nil)

	state, err := issuer.Issue("user-1")
	require.NoError(t, err)
	_, err = verifier.Consume(context.Background(), state)
	assert.Error(t, err)

	_, err = issuer.Consume(context.Background(), "user-1_not-a-token")
	assert.Error(t, err)
}

func TestMemoryStateStore_Expiry(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.MarkUsed(ctx, "n1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = store.MarkUsed(ctx, "n1", time.Second)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = store.MarkUsed(ctx, "n1", time.Second)
	assert.True(t, ok, "expired entries are released")
}

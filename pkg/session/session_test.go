package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetClear(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	got, err := store.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Nil(t, got)

	state := &State{Step: "awaiting_promo_code", Payload: map[string]string{"attempt": "1"}}
	require.NoError(t, store.Set(ctx, "chat-1", state))

	got, err = store.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "awaiting_promo_code", got.Step)
	require.Equal(t, "1", got.Payload["attempt"])

	require.NoError(t, store.Clear(ctx, "chat-1"))

	got, err = store.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chat-1", &State{Step: "step"}))
	time.Sleep(20 * time.Millisecond)

	got, err := store.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryStore_IsolatedPerChat(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chat-1", &State{Step: "a"}))
	require.NoError(t, store.Set(ctx, "chat-2", &State{Step: "b"}))
	require.NoError(t, store.Clear(ctx, "chat-1"))

	got, err := store.Get(ctx, "chat-2")
	require.NoError(t, err)
	require.Equal(t, "b", got.Step)
}

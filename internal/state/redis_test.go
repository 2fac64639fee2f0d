package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/user/ohime/internal/types"
)

func TestRedisConversationStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedisConversationStore(ctx, addr, "ohime-test-"+uuid.NewString())
	require.NoError(t, err)
	defer store.Close()

	st, err := store.LoadState(ctx, 42)
	require.NoError(t, err)
	require.Nil(t, st)

	want := &types.ConversationState{ChatID: 42, MessageID: 1, BusinessConnectionID: "bc"}
	require.NoError(t, store.SaveState(ctx, want))
	got, err := store.LoadState(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, want, got)

	due := time.UnixMilli(time.Now().Add(time.Minute).UnixMilli())
	require.NoError(t, store.SetAlarm(ctx, 42, due))
	gotDue, ok, err := store.GetAlarm(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, gotDue.Equal(due))

	pending, err := store.PendingAlarms(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Alarm{{ChatID: 42, Due: gotDue}}, pending)

	claimed, err := store.ClaimAlarm(ctx, 42)
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = store.ClaimAlarm(ctx, 42)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, store.SetAlarm(ctx, 42, due))
	require.NoError(t, store.DeleteAlarm(ctx, 42))
	require.NoError(t, store.DeleteState(ctx, 42))
	_, ok, err = store.GetAlarm(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)
}

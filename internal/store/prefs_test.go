// ABOUTME: Tests for per-user persisted preferences
// ABOUTME: Covers hidden conversation set and active service chat handle

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefs_RemovedConversations(t *testing.T) {
	ctx := context.Background()
	kv := NewMockStore()
	prefs := NewPrefs(kv)

	got, err := prefs.RemovedConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, prefs.SetRemoved(ctx, "u1", "task:2", true))
	require.NoError(t, prefs.SetRemoved(ctx, "u1", "service:9", true))

	raw, err := kv.Get(ctx, "removed_conversations_u1")
	require.NoError(t, err)
	assert.JSONEq(t, `["service:9","task:2"]`, raw)

	require.NoError(t, prefs.SetRemoved(ctx, "u1", "task:2", false))
	got, err = prefs.RemovedConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"service:9": true}, got)

	// other users are unaffected
	other, err := prefs.RemovedConversations(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPrefs_CorruptRemovedSetIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMockStore()
	require.NoError(t, kv.Set(ctx, "removed_conversations_u1", "{not json"))

	got, err := NewPrefs(kv).RemovedConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPrefs_ActiveServiceChat(t *testing.T) {
	ctx := context.Background()
	prefs := NewPrefs(NewMockStore())

	v, err := prefs.ActiveServiceChat(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, prefs.SetActiveServiceChat(ctx, "u1", "c42"))
	v, err = prefs.ActiveServiceChat(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c42", v)

	require.NoError(t, prefs.SetActiveServiceChat(ctx, "u1", ""))
	v, err = prefs.ActiveServiceChat(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

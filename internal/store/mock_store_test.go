// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on prefix listing, closed state and injected failures

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_RoundTrip(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", "1"))
	v, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_List(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "x_1", "a"))
	require.NoError(t, store.Set(ctx, "y_1", "b"))

	got, err := store.List(ctx, "x_")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x_1": "a"}, got)
}

func TestMockStore_Closed(t *testing.T) {
	store := NewMockStore()
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMockStore_SetErr(t *testing.T) {
	store := NewMockStore()
	boom := errors.New("disk full")
	store.SetErr = boom

	err := store.Set(context.Background(), "a", "1")
	assert.ErrorIs(t, err, boom)
}

package badger

import (
	"context"
	"testing"

	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerSettingsStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBadgerSettingsStore(ctx, BadgerSettingsStoreConfig{DBPath: dir})
	require.NoError(t, err)

	_, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	want := sensor.DefaultSettings()
	want.PeriodSeconds = 5
	want.Enabled &^= sensor.ChannelFilter
	require.NoError(t, store.Save(ctx, want))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerSettingsStore(ctx, BadgerSettingsStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, found, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestBadgerSettingsStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerSettingsStore(context.Background(), BadgerSettingsStoreConfig{})
	assert.Error(t, err)
}

func TestBadgerSettingsStore_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerSettingsStore(ctx, BadgerSettingsStoreConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Save(ctx, sensor.Settings{PeriodSeconds: 42}))
	got, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(42), got.PeriodSeconds)
}

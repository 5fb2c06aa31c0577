package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDriverRoundTrip(t *testing.T, driver Driver) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := driver.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "unwritten key reports absence")

	require.NoError(t, driver.Set(ctx, "chats", []byte(`[{"id":"c1"}]`)))
	require.NoError(t, driver.Set(ctx, "chats", []byte(`[{"id":"c2"}]`)))

	value, ok, err := driver.Get(ctx, "chats")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":"c2"}]`, string(value), "set replaces the previous value")
}

func TestMemoryDriver(t *testing.T) {
	driver := NewMemory()
	defer driver.Close()
	testDriverRoundTrip(t, driver)
}

func TestFileDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	driver, err := NewFile(path)
	require.NoError(t, err)
	defer driver.Close()
	testDriverRoundTrip(t, driver)
}

func TestSQLiteDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	driver, err := NewSQLite(path)
	require.NoError(t, err)
	defer driver.Close()
	testDriverRoundTrip(t, driver)
}

func TestFileDriverReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	driver, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, driver.Set(ctx, "activeChatId", []byte(`"c7"`)))
	require.NoError(t, driver.Close())

	reloaded, err := NewFile(path)
	require.NoError(t, err)
	value, ok, err := reloaded.Get(ctx, "activeChatId")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"c7"`, string(value))
}

func TestFileDriverToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o600))

	driver, err := NewFile(path)
	require.NoError(t, err, "a corrupt state file is not fatal")
	_, ok, err := driver.Get(context.Background(), "chats")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteDriverPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	driver, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, driver.Set(ctx, "chats", []byte(`[]`)))
	require.NoError(t, driver.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, ok, err := reopened.Get(ctx, "chats")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(value))
}

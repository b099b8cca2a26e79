package credentials_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/mercury/internal/credentials"
	"github.com/waabox/mercury/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_SaveThenLoad(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), ".mercury", "token.json")
	store := credentials.NewStore(path).WithClock(fixedClock(now))

	saved, err := store.Save("tok", "refresh", "Bearer", 3600)
	require.NoError(t, err)
	require.NotNil(t, saved.ExpiresAt)
	assert.True(t, saved.ExpiresAt.Equal(now.Add(time.Hour)))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.Equal(t, "Bearer", loaded.TokenType)
	assert.True(t, loaded.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.True(t, loaded.CreatedAt.Equal(now))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := credentials.NewStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
	assert.True(t, store.IsExpired())
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := credentials.NewStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotLoggedIn)
}

func TestStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := credentials.NewStore(path)
	_, err := store.Save("tok", "", "Bearer", 60)
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	assert.NoError(t, store.Clear())
}

func TestStore_IsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "token.json")

	tests := []struct {
		name      string
		expiresIn int
		later     time.Duration
		want      bool
	}{
		{"fresh", 3600, 0, false},
		{"more than a minute left", 3600, 58 * time.Minute, false},
		{"less than a minute left", 3600, 59*time.Minute + 30*time.Second, true},
		{"past expiry", 60, 2 * time.Minute, true},
		{"no expiry recorded", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credentials.NewStore(path).WithClock(fixedClock(now)).Save("tok", "", "Bearer", tt.expiresIn)
			require.NoError(t, err)

			store := credentials.NewStore(path).WithClock(fixedClock(now.Add(tt.later)))
			assert.Equal(t, tt.want, store.IsExpired())
		})
	}
}

func TestEnsureParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "token.json")
	require.NoError(t, credentials.EnsureParentDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

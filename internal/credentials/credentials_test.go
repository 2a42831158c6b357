package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Empty(t, c.AuthToken)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	want := Credentials{AuthToken: "abc", RefreshToken: "def", Email: "a@example.com"}
	require.NoError(t, Save("~/.config/tripsync/credentials.toml", want))

	path := filepath.Join(home, ".config", "tripsync", "credentials.toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, os.WriteFile(path, []byte("auth_token = "), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpiryAndAuthenticated(t *testing.T) {
	now := time.Now()
	live := signed(t, now.Add(time.Hour))
	dead := signed(t, now.Add(-time.Hour))

	exp, ok := Expiry(live)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(time.Hour), exp, 2*time.Second)

	assert.True(t, Credentials{AuthToken: live}.Authenticated(now))
	assert.False(t, Credentials{AuthToken: dead}.Authenticated(now))
	assert.False(t, Credentials{AuthToken: "opaque-token"}.Authenticated(now))
	assert.False(t, Credentials{}.Authenticated(now))

	_, ok = Expiry("opaque-token")
	assert.False(t, ok)
}

func TestStoreSetAndToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	s, err := Open(path, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Token())

	require.NoError(t, s.Set(Credentials{AuthToken: "tok-1"}))
	assert.Equal(t, "tok-1", s.Token())

	again, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", again.Token())
}

func TestStoreWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, Save(path, Credentials{AuthToken: "old"}))

	s, err := Open(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Keep rewriting until the watcher has been registered and sees a change.
	require.Eventually(t, func() bool {
		_ = Save(path, Credentials{AuthToken: "new"})
		return s.Token() == "new"
	}, 5*time.Second, 50*time.Millisecond)
}

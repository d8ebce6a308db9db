package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/internal/config"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(config.SourceConfig{CloneDir: t.TempDir()}, zap.NewNop())
}

func TestResolveLocalDirectory(t *testing.T) {
	r := newTestResolver(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print()\n"), 0o644))

	co, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, co)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, abs, co.Path)
	assert.Empty(t, co.Branch, "plain directories carry no git provenance")

	// Local directories are caller-owned, Release must not remove them.
	require.NoError(t, co.Release())
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestResolveRelativePathBecomesAbsolute(t *testing.T) {
	r := newTestResolver(t)

	wd, err := os.Getwd()
	require.NoError(t, err)

	co, err := r.Resolve(context.Background(), ".")
	require.NoError(t, err)
	assert.Equal(t, wd, co.Path)
}

func TestResolveUnknownReference(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "/no/such/path/with/extra/segments")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a local directory")
}

func TestCheckoutReleaseIsIdempotent(t *testing.T) {
	calls := 0
	co := NewCheckout("/tmp/x", "main", "abc", func() error {
		calls++
		return nil
	})

	require.NoError(t, co.Release())
	require.NoError(t, co.Release())
	assert.Equal(t, 1, calls)
}

func TestCheckoutReleasePropagatesError(t *testing.T) {
	boom := errors.New("rmdir failed")
	co := NewCheckout("/tmp/x", "", "", func() error { return boom })

	assert.ErrorIs(t, co.Release(), boom)
	assert.NoError(t, co.Release(), "a failed cleanup is not retried")
}

func TestIsRemoteURL(t *testing.T) {
	assert.True(t, isRemoteURL("https://github.com/acme/shop.git"))
	assert.True(t, isRemoteURL("http://git.internal/acme/shop"))
	assert.True(t, isRemoteURL("ssh://git@github.com/acme/shop.git"))
	assert.True(t, isRemoteURL("git@github.com:acme/shop.git"))
	assert.False(t, isRemoteURL("acme/shop"))
	assert.False(t, isRemoteURL("/srv/repos/shop"))
}

func TestIsGitHubShorthand(t *testing.T) {
	assert.True(t, isGitHubShorthand("acme/shop"))
	assert.False(t, isGitHubShorthand("acme/shop/extra"))
	assert.False(t, isGitHubShorthand("/acme"))
	assert.False(t, isGitHubShorthand("acme/"))
	assert.False(t, isGitHubShorthand("https://github.com/acme/shop"))
	assert.False(t, isGitHubShorthand("acme/my repo"))
	assert.False(t, isGitHubShorthand(`acme\shop`))
}

package policy

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/approvedrevs/internal/model"
)

func TestProviderBuildsOnce(t *testing.T) {
	path := writePolicy(t, "namespace_permissions:\n  Help: {}\n")
	p := NewProvider(path)

	first, err := p.Registry()
	require.NoError(t, err)
	assert.True(t, first.CoversNamespace(model.NSHelp))

	require.NoError(t, os.WriteFile(path, []byte("namespace_permissions:\n  Main: {}\n"), 0644))

	second, err := p.Registry()
	require.NoError(t, err)
	assert.Same(t, first, second, "registry must not change without Reload")

	reloaded, err := p.Reload()
	require.NoError(t, err)
	assert.True(t, reloaded.CoversNamespace(model.NSMain))
	assert.False(t, reloaded.CoversNamespace(model.NSHelp))
}

func TestProviderReloadKeepsPreviousOnError(t *testing.T) {
	path := writePolicy(t, "namespace_permissions:\n  Help: {}\n")
	p := NewProvider(path)
	before, err := p.Registry()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{{broken"), 0644))
	_, err = p.Reload()
	require.Error(t, err)

	after, err := p.Registry()
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(nil)
	assert.Equal(t, "", p.Path())
	reg, err := p.Registry()
	require.NoError(t, err)
	assert.True(t, reg.CoversNamespace(model.NSMain))
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, reg.Hash())

	other, err := NewStaticProvider(&PolicyConfig{NamespacePermissions: Zone{"Help": {}}}).Registry()
	require.NoError(t, err)
	assert.NotEqual(t, reg.Hash(), other.Hash())
}

func TestProviderReloadRejectedByCheck(t *testing.T) {
	path := writePolicy(t, "namespace_permissions:\n  Help: {}\n")
	p := NewProvider(path)
	before, err := p.Registry()
	require.NoError(t, err)

	p.AddCheck(func(reg *Registry) error {
		if reg.HasPropertyRules() {
			return errors.New("no property lookup")
		}
		return nil
	})
	require.NoError(t, os.WriteFile(path, []byte("all_pages: {property: Owner}\n"), 0644))
	_, err = p.Reload()
	require.Error(t, err)

	after, err := p.Registry()
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestReloaderPicksUpChanges(t *testing.T) {
	path := writePolicy(t, "namespace_permissions:\n  Help: {}\n")
	p := NewProvider(path)
	_, err := p.Registry()
	require.NoError(t, err)

	reloaded := make(chan *Registry, 4)
	r, err := NewReloader(p, zerolog.Nop(), func(reg *Registry) { reloaded <- reg })
	require.NoError(t, err)
	r.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("namespace_permissions:\n  Main: {}\n"), 0644))

	select {
	case reg := <-reloaded:
		assert.True(t, reg.CoversNamespace(model.NSMain))
	case <-time.After(5 * time.Second):
		t.Fatal("registry was not reloaded")
	}
}

func TestNewReloaderRequiresFile(t *testing.T) {
	_, err := NewReloader(NewStaticProvider(nil), zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = NewReloader(NewProvider("/nonexistent/policy.yaml"), zerolog.Nop(), nil)
	assert.Error(t, err)
}

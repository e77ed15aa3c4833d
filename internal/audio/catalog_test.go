package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

func TestCatalogList(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"sounds/pre-adhan.mp3",
		"adhan/makkah.mp3",
		"adhan/madinah.ogg",
		"adhan/readme.txt",
		"icon.png",
	)

	sounds, err := NewCatalog(root).List()
	require.NoError(t, err)
	assert.Equal(t, []Sound{
		{ID: "adhan/madinah.ogg", Name: "madinah"},
		{ID: "adhan/makkah.mp3", Name: "makkah"},
		{ID: "sounds/pre-adhan.mp3", Name: "pre-adhan"},
	}, sounds)
}

func TestCatalogListMissingRoot(t *testing.T) {
	sounds, err := NewCatalog(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, sounds)
}

func TestCatalogResolve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a-first.wav", "adhan/makkah.mp3", "adhan/madinah.ogg")
	c := NewCatalog(root)

	assert.Equal(t, "adhan/makkah.mp3", c.Resolve("adhan/makkah.mp3"))
	assert.Equal(t, "adhan/makkah.mp3", c.Resolve("makkah"))
	assert.Equal(t, "adhan/madinah.ogg", c.Resolve(""))
	assert.Equal(t, "adhan/madinah.ogg", c.Resolve("missing"))
}

func TestCatalogResolveWithoutAdhanDir(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "b.mp3", "a.mp3")
	assert.Equal(t, "a.mp3", NewCatalog(root).Resolve(""))
}

func TestCatalogResolveEmpty(t *testing.T) {
	c := NewCatalog(t.TempDir())
	assert.Equal(t, "custom.mp3", c.Resolve("custom.mp3"))
	assert.Equal(t, "", c.Resolve(""))
}

// Package audio indexes the adhan sounds shipped in the assets directory.
// Playback belongs to the view layer; the daemon only names files.
package audio

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// Pattern matches every playable sound below the assets root.
const Pattern = "**/*.{mp3,ogg,wav,m4a}"

// Sound is one playable file.
type Sound struct {
	ID   string `json:"id"`   // Slash-separated path relative to the assets root
	Name string `json:"name"` // File name without extension
}

// Catalog lists sounds under a root directory.
type Catalog struct {
	root string
	fsys fs.FS
}

// NewCatalog indexes root. A missing root yields an empty catalog.
func NewCatalog(root string) *Catalog {
	return &Catalog{root: root, fsys: os.DirFS(root)}
}

// Root returns the assets directory.
func (c *Catalog) Root() string { return c.root }

// List returns the sounds sorted by ID.
func (c *Catalog) List() ([]Sound, error) {
	matches, err := doublestar.Glob(c.fsys, Pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		if _, statErr := fs.Stat(c.fsys, "."); statErr != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("list sounds in %s: %w", c.root, err)
	}

	sort.Strings(matches)
	sounds := make([]Sound, 0, len(matches))
	for _, m := range matches {
		base := path.Base(m)
		sounds = append(sounds, Sound{
			ID:   m,
			Name: strings.TrimSuffix(base, path.Ext(base)),
		})
	}
	return sounds, nil
}

// Resolve maps the selected-adhan setting to a sound ID. The setting may hold
// an ID or a bare name. An empty or unknown selection falls back to the first
// sound under an "adhan" directory, then to the first sound; with no sounds
// at all the selection is returned unchanged so the view layer can try it.
func (c *Catalog) Resolve(selected string) string {
	sounds, err := c.List()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list sounds")
	}
	if len(sounds) == 0 {
		return selected
	}

	if selected != "" {
		for _, s := range sounds {
			if s.ID == selected || s.Name == selected {
				return s.ID
			}
		}
		log.Debug().Str("selected", selected).Msg("selected adhan not found; using default")
	}

	for _, s := range sounds {
		if ok, _ := doublestar.Match("**/adhan/**", s.ID); ok {
			return s.ID
		}
	}
	return sounds[0].ID
}

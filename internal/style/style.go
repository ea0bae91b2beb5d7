// Package style holds the catalog of vibe presets that drive timeline
// generation. The built-in catalog is embedded; deployments can replace it
// with their own TOML file.
package style

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryBusiness Category = "business"
)

type Transition string

const (
	TransitionFade Transition = "fade"
	TransitionCut  Transition = "cut"
	TransitionZoom Transition = "zoom"
	TransitionWipe Transition = "wipe"
)

// Profile is one named preset: a cut-length range, a category that decides
// the start-offset policy, and the transition and effect hints passed on to
// every window it produces.
type Profile struct {
	ID             string         `toml:"id" json:"id"`
	Label          string         `toml:"label" json:"label"`
	Description    string         `toml:"description" json:"description,omitempty"`
	Category       Category       `toml:"category" json:"category"`
	MinCutDuration float64        `toml:"min_cut" json:"min_cut_duration"`
	MaxCutDuration float64        `toml:"max_cut" json:"max_cut_duration"`
	Transition     Transition     `toml:"transition" json:"transition"`
	Effect         *models.Effect `toml:"effect" json:"effect,omitempty"`
}

var ErrEmptyCatalog = errors.New("style catalog has no profiles")

//go:embed profiles.toml
var builtin []byte

// Catalog is immutable once loaded.
type Catalog struct {
	profiles []Profile
	byID     map[string]int
}

type catalogFile struct {
	Profiles []Profile `toml:"profile"`
}

// Default returns the embedded catalog. It panics only if the embedded file
// is broken, which the package tests guard against.
func Default() *Catalog {
	c, err := Parse(bytes.NewReader(builtin))
	if err != nil {
		panic(fmt.Sprintf("style: embedded catalog: %v", err))
	}
	return c
}

// LoadFile reads a catalog from path. An empty path yields the default.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open style catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parse style catalog: %w", err)
	}
	return New(file.Profiles)
}

// New validates profiles and builds a catalog preserving their order.
func New(profiles []Profile) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		profiles: make([]Profile, 0, len(profiles)),
		byID:     make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("style %q: duplicate id", p.ID)
		}
		if p.Effect != nil {
			e := *p.Effect
			p.Effect = &e
		}
		c.byID[p.ID] = len(c.profiles)
		c.profiles = append(c.profiles, p)
	}
	return c, nil
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("style: profile id is required")
	}
	switch p.Category {
	case CategoryPersonal, CategoryBusiness:
	default:
		return fmt.Errorf("style %q: unknown category %q", p.ID, p.Category)
	}
	switch p.Transition {
	case TransitionFade, TransitionCut, TransitionZoom, TransitionWipe:
	default:
		return fmt.Errorf("style %q: unknown transition %q", p.ID, p.Transition)
	}
	if p.MinCutDuration < models.MinClipDuration {
		return fmt.Errorf("style %q: min_cut %.2fs is below the %.2fs clip minimum", p.ID, p.MinCutDuration, models.MinClipDuration)
	}
	if p.MaxCutDuration < p.MinCutDuration {
		return fmt.Errorf("style %q: max_cut %.2fs is below min_cut %.2fs", p.ID, p.MaxCutDuration, p.MinCutDuration)
	}
	return nil
}

// Lookup returns the profile for id, falling back to the first entry.
func (c *Catalog) Lookup(id string) Profile {
	if i, ok := c.byID[id]; ok {
		return c.profiles[i]
	}
	return c.profiles[0]
}

// Has reports whether id names a profile without falling back.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

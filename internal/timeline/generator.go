// Package timeline turns uploaded source clips into the initial list of cut
// windows for a project, paced by a style profile.
package timeline

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/style"
)

// Rand is the random source the generator draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

type Generator struct {
	Styles *style.Catalog
	Rand   Rand
}

// NewGenerator returns a generator seeded from the clock.
func NewGenerator(styles *style.Catalog) *Generator {
	seed := uint64(time.Now().UnixNano())
	return &Generator{
		Styles: styles,
		Rand:   rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// NewSeededGenerator returns a generator whose output is reproducible.
func NewSeededGenerator(styles *style.Catalog, seed uint64) *Generator {
	return &Generator{
		Styles: styles,
		Rand:   rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15)),
	}
}

// Generate cuts one window per clip, plus a midpoint window for long clips.
// Clips shorter than models.MinClipDuration are skipped.
func (g *Generator) Generate(clips []models.SourceClip, styleID string) models.Timeline {
	p := g.Styles.Lookup(styleID)
	out := make(models.Timeline, 0, len(clips))

	for _, clip := range clips {
		if !usable(clip) {
			continue
		}

		length := g.cutLength(p, clip.Duration)

		var start float64
		if p.Category == style.CategoryPersonal && clip.Duration > length+models.PersonalHeadroom {
			start = g.Rand.Float64() * (clip.Duration - length)
		}

		out = append(out, g.window(p, clip, start, length))

		if clip.Duration > models.DoubleDipThreshold {
			from := clip.Duration/2 + start
			second := math.Min(g.cutLength(p, clip.Duration), clip.Duration-from)
			if second > models.DoubleDipMinLength {
				out = append(out, g.window(p, clip, from, second))
			}
		}
	}
	return out
}

func (g *Generator) cutLength(p style.Profile, duration float64) float64 {
	target := p.MinCutDuration + g.Rand.Float64()*(p.MaxCutDuration-p.MinCutDuration)
	return math.Min(target, duration)
}

func (g *Generator) window(p style.Profile, clip models.SourceClip, start, length float64) models.CutWindow {
	w := models.CutWindow{
		SourceClip:   clip,
		TrimStart:    start,
		TrimDuration: length,
		Transition:   string(p.Transition),
	}
	if p.Effect != nil {
		e := *p.Effect
		w.Effect = &e
	}
	return w
}

func usable(clip models.SourceClip) bool {
	return !math.IsNaN(clip.Duration) && !math.IsInf(clip.Duration, 0) && clip.Duration >= models.MinClipDuration
}

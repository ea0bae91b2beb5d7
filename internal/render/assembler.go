package render

import (
	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

const (
	FitCover   = "cover"
	FitContain = "contain"

	backgroundScale   = 1.8
	backgroundOpacity = 0.5
	backgroundFilter  = "blur"
	portraitAspect    = "9:16"
)

// Assembler builds render requests. Empty output fields fall back to sd mp4;
// the aspect ratio is always portrait.
type Assembler struct {
	Output     Output
	Background string
}

// Compose returns the layers for one window placed at start: a single cover
// layer for vertical sources, otherwise a contain foreground over a blurred,
// enlarged copy that fills the portrait frame.
func (a Assembler) Compose(w models.CutWindow, start float64) []Clip {
	volume := 1.0
	if w.Muted {
		volume = 0
	}
	fg := Clip{
		Asset:  Asset{Type: "video", Src: w.URL, Trim: w.TrimStart, Volume: volume},
		Start:  start,
		Length: w.TrimDuration,
		Fit:    FitContain,
	}
	if w.Vertical() {
		fg.Fit = FitCover
	}
	if t := transitionFor(w.Transition); t != "" {
		fg.Transition = &Transition{In: t}
	}
	if w.Effect != nil {
		fg.Effect = w.Effect.Kind
		if w.Effect.PanX != 0 {
			fg.Offset = &Offset{X: w.Effect.PanX}
		}
	}
	if w.Vertical() {
		return []Clip{fg}
	}

	opacity := backgroundOpacity
	bg := Clip{
		Asset:   Asset{Type: "video", Src: w.URL, Trim: w.TrimStart, Volume: 0},
		Start:   start,
		Length:  w.TrimDuration,
		Fit:     FitCover,
		Scale:   backgroundScale,
		Opacity: &opacity,
		Filter:  backgroundFilter,
	}
	return []Clip{fg, bg}
}

// Assemble lays windows back to back: window i starts at the sum of the
// lengths before it.
func (a Assembler) Assemble(tl models.Timeline) Edit {
	var fg, bg []Clip
	var cursor float64
	for _, w := range tl {
		layers := a.Compose(w, cursor)
		fg = append(fg, layers[0])
		if len(layers) > 1 {
			bg = append(bg, layers[1])
		}
		cursor += w.TrimDuration
	}

	tracks := []Track{{Clips: fg}}
	if len(bg) > 0 {
		tracks = append(tracks, Track{Clips: bg})
	}
	return Edit{
		Timeline: Timeline{Background: or(a.Background, "#000000"), Tracks: tracks},
		Output: Output{
			Format:      or(a.Output.Format, "mp4"),
			Resolution:  or(a.Output.Resolution, "sd"),
			AspectRatio: portraitAspect,
		},
	}
}

func transitionFor(kind string) string {
	switch kind {
	case "fade":
		return "fade"
	case "zoom":
		return "zoom"
	case "wipe":
		return "wipeLeft"
	}
	return ""
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

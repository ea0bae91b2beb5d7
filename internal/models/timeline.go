package models

import "math"

const (
	// MinClipDuration is the shortest window any mutation path may produce.
	MinClipDuration = 0.5

	// HistoryCapacity bounds how many undo steps an editing session keeps.
	HistoryCapacity = 20

	// Long sources get a second window anchored at their midpoint.
	DoubleDipThreshold = 30.0
	DoubleDipMinLength = 1.5

	// PersonalHeadroom is the slack a personal style needs before it will
	// pick a random start instead of 0.
	PersonalHeadroom = 1.0
)

const epsilon = 1e-9

// SourceClip is the metadata the upload boundary extracts for one file.
type SourceClip struct {
	URL      string  `json:"url" toml:"url" validate:"required,url"`
	Duration float64 `json:"duration" toml:"duration" validate:"gte=0.5,lte=86400"`
	Width    int     `json:"width,omitempty" toml:"width" validate:"gte=0"`
	Height   int     `json:"height,omitempty" toml:"height" validate:"gte=0"`
}

// Vertical reports whether the source is taller than it is wide.
func (c SourceClip) Vertical() bool {
	return c.Height > c.Width
}

// Effect describes the motion a style applies to each of its windows.
type Effect struct {
	Kind     string  `json:"kind" toml:"kind"`
	ScaleIn  float64 `json:"scale_in,omitempty" toml:"scale_in"`
	ScaleOut float64 `json:"scale_out,omitempty" toml:"scale_out"`
	PanX     float64 `json:"pan_x,omitempty" toml:"pan_x"`
}

// CutWindow is one trimmed sub-interval of a source clip.
type CutWindow struct {
	SourceClip

	TrimStart    float64 `json:"trim_start"`
	TrimDuration float64 `json:"trim_duration"`
	Muted        bool    `json:"muted"`

	Transition string  `json:"transition,omitempty"`
	Effect     *Effect `json:"effect,omitempty"`
}

// TrimEnd is the source time at which the window stops playing.
func (w CutWindow) TrimEnd() float64 {
	return w.TrimStart + w.TrimDuration
}

// Valid reports whether the window satisfies the start, minimum length and
// source bound invariants.
func (w CutWindow) Valid() bool {
	if math.IsNaN(w.TrimStart) || math.IsNaN(w.TrimDuration) {
		return false
	}
	return w.TrimStart >= -epsilon &&
		w.TrimDuration >= MinClipDuration-epsilon &&
		w.TrimEnd() <= w.Duration+epsilon
}

// WithTrim returns a copy of w with a new (start, duration) pair.
func (w CutWindow) WithTrim(start, duration float64) CutWindow {
	w.TrimStart = start
	w.TrimDuration = duration
	return w
}

// Timeline is an ordered list of windows; index order is playback order
// and render order.
type Timeline []CutWindow

// Clone deep copies the timeline, including effect descriptors.
func (t Timeline) Clone() Timeline {
	if t == nil {
		return nil
	}
	out := make(Timeline, len(t))
	for i, w := range t {
		if w.Effect != nil {
			e := *w.Effect
			w.Effect = &e
		}
		out[i] = w
	}
	return out
}

// Valid reports whether the timeline is non-empty and every window holds.
func (t Timeline) Valid() bool {
	if len(t) == 0 {
		return false
	}
	for _, w := range t {
		if !w.Valid() {
			return false
		}
	}
	return true
}

// TotalLength is the rendered duration of the timeline.
func (t Timeline) TotalLength() float64 {
	var total float64
	for _, w := range t {
		total += w.TrimDuration
	}
	return total
}

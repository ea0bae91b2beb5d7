// Package trim implements the three drag gestures on a window's trim track.
//
// A gesture freezes the window at pointer-down in a DragSession; every move
// is computed against that frozen snapshot, never against the previous move,
// so dropped or coalesced pointer events cannot accumulate error.
package trim

import (
	"errors"
	"fmt"
	"math"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

type DragMode string

const (
	ModeStart DragMode = "start" // left handle, right edge fixed
	ModeEnd   DragMode = "end"   // right handle, left edge fixed
	ModeMove  DragMode = "move"  // whole window, duration fixed
)

var (
	ErrUnknownMode   = errors.New("unknown drag mode")
	ErrTrackWidth    = errors.New("track width must be positive")
	ErrInvalidWindow = errors.New("window violates trim invariants")
)

func ParseMode(s string) (DragMode, error) {
	switch m := DragMode(s); m {
	case ModeStart, ModeEnd, ModeMove:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// DragSession is created on pointer-down and discarded on pointer-up.
type DragSession struct {
	Mode       DragMode
	Origin     float64
	TrackWidth float64
	Snapshot   models.CutWindow
}

// Begin freezes window for a new gesture starting at pointer coordinate origin
// on a track trackWidth pixels wide.
func Begin(mode DragMode, origin, trackWidth float64, window models.CutWindow) (DragSession, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return DragSession{}, err
	}
	if !(trackWidth > 0) || math.IsInf(trackWidth, 0) {
		return DragSession{}, ErrTrackWidth
	}
	if !window.Valid() {
		return DragSession{}, ErrInvalidWindow
	}
	return DragSession{Mode: mode, Origin: origin, TrackWidth: trackWidth, Snapshot: window}, nil
}

// Delta projects a pointer position onto the source's time scale.
func (s DragSession) Delta(pointer float64) float64 {
	d := (pointer - s.Origin) / s.TrackWidth * s.Snapshot.Duration
	if math.IsNaN(d) {
		return 0
	}
	return d
}

// Move returns the window for the pointer at the given coordinate.
func (s DragSession) Move(pointer float64) models.CutWindow {
	return Apply(s.Mode, s.Snapshot, s.Delta(pointer))
}

// Apply computes the (start, duration) pair for a drag of delta seconds from
// snapshot. The result always satisfies the window invariants when snapshot
// does.
func Apply(mode DragMode, snapshot models.CutWindow, delta float64) models.CutWindow {
	start, dur, total := snapshot.TrimStart, snapshot.TrimDuration, snapshot.Duration

	switch mode {
	case ModeStart:
		end := start + dur
		s := clamp(start+delta, 0, end-models.MinClipDuration)
		return snapshot.WithTrim(s, end-s)

	case ModeEnd:
		d := math.Max(models.MinClipDuration, dur+delta)
		if start+d > total {
			d = total - start
		}
		return snapshot.WithTrim(start, d)

	case ModeMove:
		return snapshot.WithTrim(clamp(start+delta, 0, total-dur), dur)
	}
	return snapshot
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

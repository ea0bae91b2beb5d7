// Package playback sequences trimmed windows back to back on two media
// buffers: one visibly playing, the other preloading the next window.
package playback

import (
	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

// Buffer is one media element. Implementations must not block: Load starts
// a fetch and returns, Play may fail if the platform refuses to autoplay.
type Buffer interface {
	Source() string
	Load(src string)
	Seek(t float64)
	Play() error
	Pause()
	SetMuted(muted bool)
}

type Role int

const (
	RoleActive Role = iota
	RoleIdle
)

func (r Role) String() string {
	if r == RoleActive {
		return "active"
	}
	return "idle"
}

type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// Sequencer is driven from a single owner; it does no locking.
type Sequencer struct {
	slots  [2]Buffer
	active int // slot index holding RoleActive

	windows models.Timeline
	index   int
	state   State
	all     bool

	buffering     bool
	resumePending bool

	log logrus.FieldLogger
}

func NewSequencer(a, b Buffer, log logrus.FieldLogger) *Sequencer {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Sequencer{slots: [2]Buffer{a, b}, log: log}
}

// Buffer returns the buffer currently holding role.
func (s *Sequencer) Buffer(role Role) Buffer {
	if role == RoleActive {
		return s.slots[s.active]
	}
	return s.slots[1-s.active]
}

// ActiveSlot is the slot index (0 or 1) of the visible buffer.
func (s *Sequencer) ActiveSlot() int           { return s.active }
func (s *Sequencer) Index() int                { return s.index }
func (s *Sequencer) State() State              { return s.state }
func (s *Sequencer) PlayingAll() bool          { return s.state == StatePlaying && s.all }
func (s *Sequencer) Buffering() bool           { return s.buffering }
func (s *Sequencer) ResumePending() bool       { return s.resumePending }
func (s *Sequencer) Len() int                  { return len(s.windows) }
func (s *Sequencer) swap()                     { s.active = 1 - s.active }
func (s *Sequencer) current() models.CutWindow { return s.windows[s.index] }

// Sync installs a new timeline and cursor. When the cursor moves, roles swap
// so the preloaded buffer is the one that becomes visible; otherwise the
// active buffer is refreshed in place to pick up trim and mute edits.
func (s *Sequencer) Sync(windows models.Timeline, index int) {
	s.windows = windows.Clone()
	if len(s.windows) == 0 {
		s.Stop()
		s.index = 0
		return
	}
	index = clampIndex(index, len(s.windows))
	if index != s.index {
		s.index = index
		s.swap()
	}
	s.cue()
}

// Cue moves the cursor to index, swapping buffer roles.
func (s *Sequencer) Cue(index int) {
	if len(s.windows) == 0 {
		return
	}
	s.index = clampIndex(index, len(s.windows))
	s.swap()
	s.cue()
}

func (s *Sequencer) cue() {
	w := s.current()
	active := s.Buffer(RoleActive)
	if active.Source() != w.URL {
		active.Load(w.URL)
		s.buffering = true
	}
	active.SetMuted(w.Muted)
	active.Seek(w.TrimStart)
	if s.state == StatePlaying {
		s.play(active)
	} else {
		active.Pause()
	}

	next := s.windows[(s.index+1)%len(s.windows)]
	idle := s.Buffer(RoleIdle)
	idle.Pause()
	if idle.Source() != next.URL {
		idle.Load(next.URL)
	}
	idle.SetMuted(next.Muted)
	idle.Seek(next.TrimStart)
}

// Play starts the active buffer. With all set the sequencer walks the whole
// timeline and wraps; otherwise it loops the current window.
func (s *Sequencer) Play(all bool) {
	if len(s.windows) == 0 {
		return
	}
	s.state = StatePlaying
	s.all = all
	s.play(s.Buffer(RoleActive))
}

func (s *Sequencer) play(b Buffer) {
	if err := b.Play(); err != nil {
		// Autoplay refusals are expected; the next tick tries again.
		s.resumePending = true
		s.log.WithError(err).Debug("play rejected")
		return
	}
	s.resumePending = false
}

// Stop pauses both buffers and drops any pending resume.
func (s *Sequencer) Stop() {
	s.state = StateIdle
	s.all = false
	s.resumePending = false
	for _, b := range s.slots {
		b.Pause()
	}
}

// Tick reports the active buffer's playback position. It returns true when
// the cursor advanced to another window.
func (s *Sequencer) Tick(currentTime float64) bool {
	if s.state != StatePlaying || len(s.windows) == 0 {
		return false
	}
	w := s.current()
	if s.buffering && currentTime > w.TrimStart {
		s.buffering = false
	}
	if s.resumePending {
		s.play(s.Buffer(RoleActive))
	}
	if currentTime < w.TrimEnd() {
		return false
	}

	if s.all {
		s.Cue((s.index + 1) % len(s.windows))
		return true
	}
	active := s.Buffer(RoleActive)
	active.Seek(w.TrimStart)
	s.play(active)
	return false
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

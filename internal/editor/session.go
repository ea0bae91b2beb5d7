// Package editor hosts the per-project editing session: the cursor, the drag
// gesture in progress, the undo history and the playback sequencer, all
// owned by one Session and mutated one event at a time.
package editor

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/history"
	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/playback"
	"github.com/sanjayabhattarai/katkut.ai/internal/trim"
)

var (
	ErrIndexOutOfRange = errors.New("clip index out of range")
	ErrNoDrag          = errors.New("no drag in progress")
	ErrEmptyTimeline   = errors.New("timeline has no clips")
)

type Session struct {
	mu sync.Mutex

	projectID uuid.UUID
	owner     uuid.UUID

	history *history.Store[models.Timeline]
	active  int
	dirty   bool

	// Set between BeginDrag and EndDrag; live holds the uncommitted edit.
	drag *trim.DragSession
	live models.Timeline

	player  *playback.Sequencer
	buffers [2]*playback.VirtualBuffer

	log logrus.FieldLogger
}

// NewSession opens an editing session over tl. The timeline must contain at
// least one window.
func NewSession(projectID, owner uuid.UUID, tl models.Timeline, log logrus.FieldLogger) (*Session, error) {
	if len(tl) == 0 {
		return nil, ErrEmptyTimeline
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	log = log.WithField("project_id", projectID.String())

	s := &Session{
		projectID: projectID,
		owner:     owner,
		history:   history.New(tl, history.WithCapacity[models.Timeline](models.HistoryCapacity), history.WithClone(models.Timeline.Clone)),
		buffers:   [2]*playback.VirtualBuffer{playback.NewVirtualBuffer(), playback.NewVirtualBuffer()},
		log:       log,
	}
	s.player = playback.NewSequencer(s.buffers[0], s.buffers[1], log)
	s.player.Sync(tl, 0)
	return s, nil
}

func (s *Session) ProjectID() uuid.UUID { return s.projectID }
func (s *Session) Owner() uuid.UUID     { return s.owner }

// timeline returns the state the user sees: the live drag edit if any.
func (s *Session) timeline() models.Timeline {
	if s.live != nil {
		return s.live
	}
	return s.history.Present()
}

func (s *Session) Timeline() models.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline().Clone()
}

func (s *Session) commit(next models.Timeline) {
	s.history.Set(next)
	s.dirty = true
	s.active = clampIndex(s.active, len(next))
	s.player.Sync(next, s.active)
}

// Select makes clip i the edited clip and stops playback.
func (s *Session) Select(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endDrag()
	tl := s.history.Present()
	if i < 0 || i >= len(tl) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	s.active = i
	s.player.Stop()
	s.player.Sync(tl, i)
	return nil
}

// BeginDrag starts a trim gesture on the active clip. A gesture still open
// from a lost pointer-up is committed first.
func (s *Session) BeginDrag(mode trim.DragMode, pointer, trackWidth float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endDrag()
	tl := s.history.Present()
	d, err := trim.Begin(mode, pointer, trackWidth, tl[s.active])
	if err != nil {
		return err
	}
	s.drag = &d
	s.live = tl
	s.player.Stop()
	return nil
}

// DragTo applies one pointer move. The returned window is the atomic
// (start, duration) pair now shown for the active clip.
func (s *Session) DragTo(pointer float64) (models.CutWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drag == nil {
		return models.CutWindow{}, ErrNoDrag
	}
	w := s.drag.Move(pointer)
	s.live[s.active] = w
	s.player.Sync(s.live, s.active)
	return w, nil
}

// EndDrag commits the gesture as one history entry. It reports whether the
// gesture changed anything.
func (s *Session) EndDrag() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drag == nil {
		return false, ErrNoDrag
	}
	return s.endDrag(), nil
}

func (s *Session) endDrag() bool {
	if s.drag == nil {
		return false
	}
	live := s.live
	s.drag, s.live = nil, nil
	if reflect.DeepEqual(live, s.history.Present()) {
		return false
	}
	s.commit(live)
	return true
}

// CancelDrag drops the gesture and restores the committed window.
func (s *Session) CancelDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDrag()
}

func (s *Session) cancelDrag() {
	if s.drag == nil {
		return
	}
	s.drag, s.live = nil, nil
	s.player.Sync(s.history.Present(), s.active)
}

func (s *Session) ToggleMute(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endDrag()
	tl := s.history.Present()
	if i < 0 || i >= len(tl) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	tl[i].Muted = !tl[i].Muted
	s.commit(tl)
	return nil
}

// Delete removes clip i. Removing the last remaining clip is refused and
// reported as false.
func (s *Session) Delete(i int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endDrag()
	tl := s.history.Present()
	if i < 0 || i >= len(tl) {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if len(tl) == 1 {
		s.log.WithField("index", i).Debug("refusing to delete the last clip")
		return false, nil
	}
	next := append(tl[:i:i], tl[i+1:]...)
	switch {
	case i == s.active:
		s.active = max(0, s.active-1)
	case i < s.active:
		s.active--
	}
	s.commit(next)
	return true, nil
}

// Reorder moves clip from to position to. The cursor stays on the clip it
// was on.
func (s *Session) Reorder(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endDrag()
	tl := s.history.Present()
	if from < 0 || from >= len(tl) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, from)
	}
	if to < 0 || to >= len(tl) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, to)
	}
	if from == to {
		return nil
	}
	moved := tl[from]
	rest := append(tl[:from:from], tl[from+1:]...)
	next := make(models.Timeline, 0, len(tl))
	next = append(next, rest[:to]...)
	next = append(next, moved)
	next = append(next, rest[to:]...)

	switch {
	case s.active == from:
		s.active = to
	case from < s.active && to >= s.active:
		s.active--
	case from > s.active && to <= s.active:
		s.active++
	}
	s.commit(next)
	return nil
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelDrag()
	if !s.history.Undo() {
		return false
	}
	s.afterHistoryMove()
	return true
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelDrag()
	if !s.history.Redo() {
		return false
	}
	s.afterHistoryMove()
	return true
}

func (s *Session) afterHistoryMove() {
	tl := s.history.Present()
	s.dirty = true
	s.active = clampIndex(s.active, len(tl))
	s.player.Sync(tl, s.active)
}

// TogglePlay stops playback if anything is playing, otherwise starts it and
// reports true. With all set the whole timeline plays and wraps; without it
// the active clip loops between its trim points.
func (s *Session) TogglePlay(all bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player.State() == playback.StatePlaying {
		s.player.Stop()
		return false
	}
	s.endDrag()
	s.player.Play(all)
	return true
}

// Tick forwards the active buffer's reported playback time. It reports
// whether the cursor moved to another clip.
func (s *Session) Tick(currentTime float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.player.Buffer(playback.RoleActive).(*playback.VirtualBuffer); ok {
		b.Advance(currentTime)
	}
	if !s.player.Tick(currentTime) {
		return false
	}
	s.active = s.player.Index()
	return true
}

// Close stops playback and drops any open gesture.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDrag()
	s.player.Stop()
}

// MarkSaved records that the present timeline has been persisted.
func (s *Session) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

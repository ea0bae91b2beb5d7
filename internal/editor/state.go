package editor

import (
	"github.com/google/uuid"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/playback"
	"github.com/sanjayabhattarai/katkut.ai/internal/trim"
)

// State is what a client needs to redraw the editor.
type State struct {
	ProjectID    uuid.UUID       `json:"project_id"`
	Timeline     models.Timeline `json:"timeline"`
	ActiveIndex  int             `json:"active_index"`
	IsPlayingAll bool            `json:"is_playing_all"`
	Playing      bool            `json:"playing"`
	Buffering    bool            `json:"buffering"`
	CanUndo      bool            `json:"can_undo"`
	CanRedo      bool            `json:"can_redo"`
	Dirty        bool            `json:"dirty"`
	DragMode     trim.DragMode   `json:"drag_mode,omitempty"`
	TotalLength  float64         `json:"total_length"`
	Playback     PlaybackState   `json:"playback"`
}

type PlaybackState struct {
	ActiveSlot int                  `json:"active_slot"`
	Active     playback.BufferState `json:"active"`
	Idle       playback.BufferState `json:"idle"`
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl := s.timeline().Clone()
	st := State{
		ProjectID:    s.projectID,
		Timeline:     tl,
		ActiveIndex:  s.active,
		IsPlayingAll: s.player.PlayingAll(),
		Playing:      s.player.State() == playback.StatePlaying,
		Buffering:    s.player.Buffering(),
		CanUndo:      s.history.CanUndo(),
		CanRedo:      s.history.CanRedo(),
		Dirty:        s.dirty,
		TotalLength:  tl.TotalLength(),
		Playback: PlaybackState{
			ActiveSlot: s.player.ActiveSlot(),
			Active:     s.buffers[s.player.ActiveSlot()].State(),
			Idle:       s.buffers[1-s.player.ActiveSlot()].State(),
		},
	}
	if s.drag != nil {
		st.DragMode = s.drag.Mode
	}
	return st
}

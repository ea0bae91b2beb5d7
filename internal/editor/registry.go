package editor

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

var ErrSessionNotOpen = errors.New("editing session not open")

// Loader fetches the persisted timeline for a project when a session is
// opened for the first time.
type Loader func() (models.Timeline, error)

// Registry holds one session per project.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	log      logrus.FieldLogger
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session), log: log}
}

// Open returns the existing session for projectID or creates one from load.
// Reopening keeps the in-memory history, so a client reload does not lose
// undo steps.
func (r *Registry) Open(projectID, owner uuid.UUID, load Loader) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[projectID]; ok {
		return s, false, nil
	}
	tl, err := load()
	if err != nil {
		return nil, false, err
	}
	s, err := NewSession(projectID, owner, tl, r.log)
	if err != nil {
		return nil, false, err
	}
	r.sessions[projectID] = s
	return s, true, nil
}

func (r *Registry) Get(projectID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[projectID]
	if !ok {
		return nil, ErrSessionNotOpen
	}
	return s, nil
}

// Close stops and forgets the session. Closing an unknown id is a no-op.
func (r *Registry) Close(projectID uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[projectID]
	delete(r.sessions, projectID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll is called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

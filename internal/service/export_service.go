package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/render"
	"github.com/sanjayabhattarai/katkut.ai/internal/worker"
)

var (
	ErrExportInProgress = errors.New("export already in progress")
	ErrNoExport         = errors.New("no export in progress")

	errExportCancelled = errors.New("export cancelled")
)

// Renderer is the render service as seen by exports.
type Renderer interface {
	Submit(ctx context.Context, edit render.Edit) (string, error)
	render.StatusChecker
}

// ExportService submits project timelines for rendering and follows each
// job on the worker pool until it settles.
type ExportService struct {
	Projects  *ProjectService
	Assembler render.Assembler
	Renderer  Renderer
	Pool      *worker.Pool

	PollInterval time.Duration
	Timeout      time.Duration
	MaxErrors    int

	log logrus.FieldLogger

	mu    sync.Mutex
	polls map[uuid.UUID]*pollSlot
}

// pollSlot is held for a project from the moment an export starts until its
// poll job returns. cancel is nil until the job runs; a Cancel before that is
// recorded in cancelled and applied when the job starts.
type pollSlot struct {
	cancel    context.CancelCauseFunc
	cancelled bool
}

func NewExportService(projects *ProjectService, renderer Renderer, pool *worker.Pool, log logrus.FieldLogger) *ExportService {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &ExportService{
		Projects:     projects,
		Renderer:     renderer,
		Pool:         pool,
		PollInterval: render.DefaultPollInterval,
		Timeout:      10 * time.Minute,
		MaxErrors:    3,
		log:          log.WithField("component", "export"),
		polls:        make(map[uuid.UUID]*pollSlot),
	}
}

// Start renders the project's saved timeline. It returns once the job is
// submitted; the outcome is written to the project by the poll job. While an
// export of the project is in flight, Start returns ErrExportInProgress
// without submitting or touching the project.
func (s *ExportService) Start(ctx context.Context, projectID, userID uuid.UUID) (models.ExportState, error) {
	p, err := s.Projects.Get(ctx, projectID, userID)
	if err != nil {
		return models.ExportState{}, err
	}
	if !p.Timeline.Valid() {
		return models.ExportState{}, ErrInvalidTimeline
	}
	slot, ok := s.reserve(projectID)
	if !ok {
		return p.ExportState(), ErrExportInProgress
	}

	edit := s.Assembler.Assemble(p.Timeline)
	jobID, err := s.Renderer.Submit(ctx, edit)
	if err != nil {
		s.release(projectID, slot)
		s.fail(ctx, projectID, fmt.Sprintf("submit render: %v", err))
		return models.ExportState{}, fmt.Errorf("submit render: %w", err)
	}

	if err := s.Projects.MarkRendering(ctx, projectID, jobID); err != nil {
		s.release(projectID, slot)
		return models.ExportState{}, err
	}
	if err := s.launch(projectID, slot, jobID); err != nil {
		s.release(projectID, slot)
		s.fail(ctx, projectID, err.Error())
		return models.ExportState{}, err
	}

	s.log.WithFields(logrus.Fields{"project_id": projectID, "job_id": jobID}).Info("export started")
	p.Status = models.StatusRendering
	p.RenderJobID = jobID
	p.FinalVideoURL = ""
	p.ExportError = ""
	return p.ExportState(), nil
}

// Status reports the export fields of a project.
func (s *ExportService) Status(ctx context.Context, projectID, userID uuid.UUID) (models.ExportState, error) {
	p, err := s.Projects.Get(ctx, projectID, userID)
	if err != nil {
		return models.ExportState{}, err
	}
	return p.ExportState(), nil
}

// Cancel abandons the in-flight poll. The project is marked failed with
// "export cancelled"; the render job itself keeps running remotely.
func (s *ExportService) Cancel(ctx context.Context, projectID, userID uuid.UUID) error {
	if _, err := s.Projects.Get(ctx, projectID, userID); err != nil {
		return err
	}

	s.mu.Lock()
	slot, ok := s.polls[projectID]
	if !ok {
		s.mu.Unlock()
		return ErrNoExport
	}
	cancel := slot.cancel
	if cancel == nil {
		slot.cancelled = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel(errExportCancelled)
	}
	return nil
}

// Resume re-attaches poll jobs to projects left rendering by a previous run.
func (s *ExportService) Resume(ctx context.Context) (int, error) {
	projects, err := s.Projects.ListRendering(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range projects {
		if p.RenderJobID == "" {
			s.fail(ctx, p.ID, "interrupted by restart")
			continue
		}
		slot, ok := s.reserve(p.ID)
		if !ok {
			continue
		}
		if err := s.launch(p.ID, slot, p.RenderJobID); err != nil {
			s.release(p.ID, slot)
			return n, err
		}
		n++
	}
	if n > 0 {
		s.log.WithField("count", n).Info("resumed export polls")
	}
	return n, nil
}

func (s *ExportService) polling(projectID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[projectID]
	return ok
}

// reserve claims the project's poll slot. It fails when another export of
// the project is already between submit and settle.
func (s *ExportService) reserve(projectID uuid.UUID) (*pollSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[projectID]; ok {
		return nil, false
	}
	slot := &pollSlot{}
	s.polls[projectID] = slot
	return slot, true
}

// release frees the slot if it still belongs to this export.
func (s *ExportService) release(projectID uuid.UUID, slot *pollSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.polls[projectID] == slot {
		delete(s.polls, projectID)
	}
}

// launch queues the poll job for a reserved slot.
func (s *ExportService) launch(projectID uuid.UUID, slot *pollSlot, jobID string) error {
	job := worker.JobFunc{
		Name: "poll:" + jobID,
		Fn: func(ctx context.Context) error {
			pctx, cancel := context.WithCancelCause(ctx)
			s.mu.Lock()
			slot.cancel = cancel
			if slot.cancelled {
				cancel(errExportCancelled)
			}
			s.mu.Unlock()
			defer s.release(projectID, slot)
			defer cancel(nil)
			return s.poll(pctx, projectID, jobID)
		},
	}
	if err := s.Pool.Submit(job); err != nil {
		return fmt.Errorf("queue export poll: %w", err)
	}
	return nil
}

func (s *ExportService) poll(ctx context.Context, projectID uuid.UUID, jobID string) error {
	log := s.log.WithFields(logrus.Fields{"project_id": projectID, "job_id": jobID})

	pctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	st, err := render.Poll(pctx, s.Renderer, jobID, s.PollInterval, s.MaxErrors)
	// Persist with a context that survives the poll's own cancellation.
	store := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		if err := s.Projects.CompleteExport(store, projectID, st.URL); err != nil {
			return fmt.Errorf("complete export: %w", err)
		}
		log.WithField("url", st.URL).Info("export completed")
		return nil
	case errors.Is(context.Cause(ctx), errExportCancelled):
		s.fail(store, projectID, errExportCancelled.Error())
		log.Info("export cancelled")
		return nil
	case ctx.Err() != nil:
		// Pool shutdown: leave the project rendering so Resume can pick it up.
		log.Info("export poll abandoned on shutdown")
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		s.fail(store, projectID, "render timed out")
		return err
	default:
		s.fail(store, projectID, err.Error())
		return err
	}
}

func (s *ExportService) fail(ctx context.Context, projectID uuid.UUID, msg string) {
	if err := s.Projects.FailExport(ctx, projectID, msg); err != nil {
		s.log.WithError(err).WithField("project_id", projectID).Error("record export failure")
		return
	}
	s.log.WithFields(logrus.Fields{"project_id": projectID, "error": msg}).Warn("export failed")
}

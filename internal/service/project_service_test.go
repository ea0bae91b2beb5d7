package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

func newTestProjects(t *testing.T) *ProjectService {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewProjectService(db, DialectSQLite)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func sampleTimeline() models.Timeline {
	return models.Timeline{
		{SourceClip: models.SourceClip{URL: "https://cdn.test/a.mp4", Duration: 10, Width: 1080, Height: 1920}, TrimStart: 1, TrimDuration: 2},
		{SourceClip: models.SourceClip{URL: "https://cdn.test/b.mp4", Duration: 8, Width: 1920, Height: 1080}, TrimStart: 0, TrimDuration: 3, Muted: true, Transition: "fade"},
	}
}

func createProject(t *testing.T, s *ProjectService, userID uuid.UUID) *models.Project {
	t.Helper()
	p := &models.Project{UserID: userID, Name: "trip", StyleID: "travel", Timeline: sampleTimeline()}
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func TestRebind(t *testing.T) {
	got := DialectPostgres.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?")
	if got != "UPDATE t SET a = $1, b = $2 WHERE id = $3" {
		t.Errorf("postgres rebind = %q", got)
	}
	if q := DialectSQLite.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite rebind = %q", q)
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Error("expected unsupported driver error")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestProjects(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestProjects(t)
	ctx := context.Background()
	user := uuid.New()
	p := createProject(t, s, user)

	if p.ID == uuid.Nil || p.Version != 1 || p.Status != models.StatusDraft {
		t.Fatalf("unexpected created project %+v", p)
	}

	got, err := s.Get(ctx, p.ID, user)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "trip" || got.StyleID != "travel" {
		t.Errorf("got %+v", got)
	}
	if len(got.Timeline) != 2 || !got.Timeline[1].Muted || got.Timeline[1].Transition != "fade" {
		t.Errorf("timeline not round-tripped: %+v", got.Timeline)
	}
	if got.LastExportedAt != nil {
		t.Errorf("draft should have no export time")
	}
}

func TestGetErrors(t *testing.T) {
	s := newTestProjects(t)
	ctx := context.Background()
	p := createProject(t, s, uuid.New())

	if _, err := s.Get(ctx, uuid.New(), p.UserID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, p.ID, uuid.New()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateRejectsEmptyTimeline(t *testing.T) {
	s := newTestProjects(t)
	err := s.Create(context.Background(), &models.Project{UserID: uuid.New(), Name: "x", StyleID: "travel"})
	if !errors.Is(err, ErrInvalidTimeline) {
		t.Fatalf("expected ErrInvalidTimeline, got %v", err)
	}
}

func TestSaveTimelineBumpsVersion(t *testing.T) {
	s := newTestProjects(t)
	ctx := context.Background()
	p := createProject(t, s, uuid.New())

	tl := p.Timeline.Clone()
	tl = tl[:1]
	tl[0].TrimStart = 4
	v, err := s.SaveTimeline(ctx, p.ID, tl)
	if err != nil {
		t.Fatalf("SaveTimeline: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}

	got, _ := s.Get(ctx, p.ID, p.UserID)
	if len(got.Timeline) != 1 || got.Timeline[0].TrimStart != 4 || got.Version != 2 {
		t.Errorf("saved project = %+v", got)
	}

	if _, err := s.SaveTimeline(ctx, p.ID, nil); !errors.Is(err, ErrInvalidTimeline) {
		t.Errorf("expected ErrInvalidTimeline, got %v", err)
	}
	bad := tl.Clone()
	bad[0].TrimDuration = 100
	if _, err := s.SaveTimeline(ctx, p.ID, bad); !errors.Is(err, ErrInvalidTimeline) {
		t.Errorf("out-of-range window accepted: %v", err)
	}
	if _, err := s.SaveTimeline(ctx, uuid.New(), tl); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestExportLifecycle(t *testing.T) {
	s := newTestProjects(t)
	ctx := context.Background()
	p := createProject(t, s, uuid.New())

	if err := s.MarkRendering(ctx, p.ID, "job-1"); err != nil {
		t.Fatalf("MarkRendering: %v", err)
	}
	got, _ := s.Get(ctx, p.ID, p.UserID)
	if got.Status != models.StatusRendering || got.RenderJobID != "job-1" {
		t.Fatalf("after MarkRendering: %+v", got)
	}

	if err := s.FailExport(ctx, p.ID, "bad asset"); err != nil {
		t.Fatalf("FailExport: %v", err)
	}
	got, _ = s.Get(ctx, p.ID, p.UserID)
	if got.Status != models.StatusFailed || got.ExportError != "bad asset" || len(got.Timeline) != 2 {
		t.Fatalf("after FailExport: %+v", got)
	}

	_ = s.MarkRendering(ctx, p.ID, "job-2")
	if err := s.CompleteExport(ctx, p.ID, "https://cdn.test/out.mp4"); err != nil {
		t.Fatalf("CompleteExport: %v", err)
	}
	got, _ = s.Get(ctx, p.ID, p.UserID)
	if got.Status != models.StatusCompleted || got.FinalVideoURL != "https://cdn.test/out.mp4" || got.ExportError != "" {
		t.Fatalf("after CompleteExport: %+v", got)
	}
	if got.LastExportedAt == nil {
		t.Error("export time not recorded")
	}

	if err := s.FailExport(ctx, uuid.New(), "x"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestListRecent(t *testing.T) {
	s := newTestProjects(t)
	ctx := context.Background()
	user := uuid.New()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return clock }

	var ids []uuid.UUID
	for i := 0; i < 8; i++ {
		p := createProject(t, s, user)
		clock = clock.Add(time.Minute)
		if err := s.CompleteExport(ctx, p.ID, "https://cdn.test/out.mp4"); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID)
	}
	// A draft and another user's project stay out of the list.
	createProject(t, s, user)
	createProject(t, s, uuid.New())

	recent, err := s.ListRecent(ctx, user, 6)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 6 {
		t.Fatalf("len = %d, want 6", len(recent))
	}
	for i, p := range recent {
		if p.ID != ids[len(ids)-1-i] {
			t.Errorf("position %d: got %s, want newest first", i, p.ID)
		}
	}

	empty, err := s.ListRecent(ctx, uuid.New(), 6)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v %v", empty, err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestProjects(t)
	ctx := context.Background()
	p := createProject(t, s, uuid.New())

	if err := s.Delete(ctx, p.ID, uuid.New()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := s.Delete(ctx, p.ID, p.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, p.ID, p.UserID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("project still present: %v", err)
	}
}

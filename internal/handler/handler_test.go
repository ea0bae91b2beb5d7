package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/editor"
	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/render"
	"github.com/sanjayabhattarai/katkut.ai/internal/service"
	"github.com/sanjayabhattarai/katkut.ai/internal/storage"
	"github.com/sanjayabhattarai/katkut.ai/internal/style"
	"github.com/sanjayabhattarai/katkut.ai/internal/timeline"
	"github.com/sanjayabhattarai/katkut.ai/internal/worker"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type stubRenderer struct {
	mu     sync.Mutex
	status render.JobStatus
}

func (s *stubRenderer) Submit(ctx context.Context, edit render.Edit) (string, error) {
	return "job-42", nil
}

func (s *stubRenderer) Status(ctx context.Context, id string) (render.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

type testEnv struct {
	router   *mux.Router
	handler  *Handler
	renderer *stubRenderer
	user     uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := service.Open(ctx, service.DialectSQLite, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	projects := service.NewProjectService(db, service.DialectSQLite)
	if err := projects.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	store, err := storage.NewLocalStorage(filepath.Join(dir, "uploads"), "http://localhost:8083")
	if err != nil {
		t.Fatal(err)
	}

	pool := worker.NewPool(1, 4, testLogger())
	pool.Start()
	t.Cleanup(pool.Stop)

	renderer := &stubRenderer{status: render.JobStatus{Status: render.StatusRendering}}
	exports := service.NewExportService(projects, renderer, pool, testLogger())
	exports.PollInterval = time.Millisecond

	styles := style.Default()
	h := &Handler{
		Projects:  projects,
		Exports:   exports,
		Sessions:  editor.NewRegistry(testLogger()),
		Styles:    styles,
		Generator: timeline.NewSeededGenerator(styles, 7),
		Storage:   store,
		Log:       testLogger(),
	}
	r := mux.NewRouter()
	h.Routes(r)
	return &testEnv{router: r, handler: h, renderer: renderer, user: uuid.New()}
}

func (e *testEnv) do(t *testing.T, method, path string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set(UserHeader, user.String())
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func ref[T any](v T) *T { return &v }

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
}

func (e *testEnv) createProject(t *testing.T, clips ...models.SourceClip) models.Project {
	t.Helper()
	if len(clips) == 0 {
		clips = []models.SourceClip{
			{URL: "https://cdn.test/a.mp4", Duration: 10, Width: 1080, Height: 1920},
			{URL: "https://cdn.test/b.mp4", Duration: 12, Width: 1920, Height: 1080},
			{URL: "https://cdn.test/c.mp4", Duration: 8, Width: 1080, Height: 1920},
		}
	}
	rec := e.do(t, http.MethodPost, "/api/v1/projects", e.user, map[string]any{
		"name":     "launch",
		"style_id": "corporate",
		"clips":    clips,
	})
	expectStatus(t, rec, http.StatusCreated)
	return decodeBody[models.Project](t, rec)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestListStyles(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/styles", uuid.Nil, nil)
	expectStatus(t, rec, http.StatusOK)
	profiles := decodeBody[[]style.Profile](t, rec)
	if len(profiles) == 0 || profiles[0].ID != "travel" {
		t.Errorf("profiles = %+v", profiles)
	}
}

func multipartUpload(t *testing.T, filename, contentType string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("fake video bytes"))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadFile(t *testing.T) {
	e := newTestEnv(t)

	body, ct := multipartUpload(t, "holiday.mp4", "video/mp4", map[string]string{
		"duration": "12.5", "width": "1920", "height": "1080",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(UserHeader, e.user.String())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusCreated)

	clip := decodeBody[models.SourceClip](t, rec)
	if !strings.HasPrefix(clip.URL, "http://localhost:8083/uploads/") || clip.Duration != 12.5 || clip.Width != 1920 {
		t.Errorf("clip = %+v", clip)
	}
}

func TestUploadRejects(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name        string
		filename    string
		contentType string
		fields      map[string]string
	}{
		{"audio file", "song.mp3", "audio/mpeg", map[string]string{"duration": "3"}},
		{"missing duration", "a.mp4", "video/mp4", map[string]string{}},
		{"too short", "a.mp4", "video/mp4", map[string]string{"duration": "0.2"}},
		{"bad width", "a.mp4", "video/mp4", map[string]string{"duration": "3", "width": "wide"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartUpload(t, tt.filename, tt.contentType, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set(UserHeader, e.user.String())
			rec := httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}

	rec := e.do(t, http.MethodPost, "/api/v1/upload", uuid.Nil, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCreateAndGetProject(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)

	if p.StyleID != "corporate" || p.Status != models.StatusDraft || p.Version != 1 {
		t.Errorf("project = %+v", p)
	}
	if len(p.Timeline) != 3 {
		t.Fatalf("timeline has %d windows", len(p.Timeline))
	}
	for i, w := range p.Timeline {
		if !w.Valid() || w.TrimStart != 0 {
			t.Errorf("window %d = %+v", i, w)
		}
	}

	rec := e.do(t, http.MethodGet, "/api/v1/projects/"+p.ID.String(), e.user, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+p.ID.String(), uuid.New(), nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+uuid.NewString(), e.user, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = e.do(t, http.MethodGet, "/api/v1/projects/nope", e.user, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestCreateProjectValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/projects", e.user, map[string]any{
		"style_id": "travel",
		"clips":    []models.SourceClip{{URL: "https://cdn.test/a.mp4", Duration: 0.1}},
	})
	expectStatus(t, rec, http.StatusBadRequest)
	resp := decodeBody[errorResponse](t, rec)
	if len(resp.Errors) == 0 {
		t.Errorf("no field errors in %+v", resp)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/projects", uuid.Nil, map[string]any{})
	expectStatus(t, rec, http.StatusUnauthorized)

	// Unknown styles fall back to the first catalog entry.
	rec = e.do(t, http.MethodPost, "/api/v1/projects", e.user, map[string]any{
		"style_id": "nope",
		"clips":    []models.SourceClip{{URL: "https://cdn.test/a.mp4", Duration: 6}},
	})
	expectStatus(t, rec, http.StatusCreated)
	p := decodeBody[models.Project](t, rec)
	if p.StyleID != "travel" || p.Name != defaultProjectName {
		t.Errorf("project = %+v", p)
	}
}

func TestSessionEditingFlow(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)
	base := "/api/v1/sessions/" + p.ID.String()

	rec := e.do(t, http.MethodPost, base, e.user, nil)
	expectStatus(t, rec, http.StatusCreated)
	rec = e.do(t, http.MethodPost, base, e.user, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = e.do(t, http.MethodPost, base, uuid.New(), nil)
	expectStatus(t, rec, http.StatusForbidden)
	rec = e.do(t, http.MethodGet, base, uuid.New(), nil)
	expectStatus(t, rec, http.StatusForbidden)

	// Move the first window 2s to the right: 100px of a 500px track over a
	// 10s source.
	rec = e.do(t, http.MethodPost, base+"/drag/start", e.user, dragStartRequest{Mode: "move", Pointer: ref(0.0), TrackWidth: ref(500.0)})
	expectStatus(t, rec, http.StatusOK)
	rec = e.do(t, http.MethodPost, base+"/drag/move", e.user, dragMoveRequest{Pointer: ref(100.0)})
	expectStatus(t, rec, http.StatusOK)
	resp := decodeBody[sessionResponse](t, rec)
	if resp.Window == nil || resp.Window.TrimStart != 2 {
		t.Fatalf("window = %+v", resp.Window)
	}
	if resp.State.CanUndo {
		t.Error("drag move should not add history")
	}
	rec = e.do(t, http.MethodPost, base+"/drag/end", e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.Changed == nil || !*resp.Changed || !resp.State.CanUndo || !resp.State.Dirty {
		t.Fatalf("drag end = %+v", resp)
	}

	rec = e.do(t, http.MethodPost, base+"/drag/end", e.user, nil)
	expectStatus(t, rec, http.StatusConflict)
	rec = e.do(t, http.MethodPost, base+"/drag/start", e.user, dragStartRequest{Mode: "slide", Pointer: ref(0.0), TrackWidth: ref(500.0)})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = e.do(t, http.MethodPost, base+"/mute", e.user, indexRequest{Index: ref(1)})
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if !resp.State.Timeline[1].Muted {
		t.Error("mute not applied")
	}

	rec = e.do(t, http.MethodPost, base+"/undo", e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.State.Timeline[1].Muted || !resp.State.CanRedo {
		t.Errorf("undo = %+v", resp.State)
	}
	rec = e.do(t, http.MethodPost, base+"/redo", e.user, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = e.do(t, http.MethodPost, base+"/reorder", e.user, reorderRequest{From: ref(0), To: ref(2)})
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.State.Timeline[2].TrimStart != 2 {
		t.Errorf("reorder = %+v", resp.State.Timeline)
	}

	rec = e.do(t, http.MethodPost, base+"/select", e.user, indexRequest{Index: ref(9)})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = e.do(t, http.MethodPut, base, e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.Version != 2 || resp.State.Dirty {
		t.Errorf("save = version %d dirty %v", resp.Version, resp.State.Dirty)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+p.ID.String(), e.user, nil)
	saved := decodeBody[models.Project](t, rec)
	if saved.Version != 2 || saved.Timeline[2].TrimStart != 2 || !saved.Timeline[0].Muted {
		t.Errorf("saved project = %+v", saved)
	}

	rec = e.do(t, http.MethodDelete, base, e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = e.do(t, http.MethodGet, base, e.user, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestSessionDeleteLastClipIsRejected(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t, models.SourceClip{URL: "https://cdn.test/a.mp4", Duration: 10, Width: 1080, Height: 1920})
	base := "/api/v1/sessions/" + p.ID.String()
	expectStatus(t, e.do(t, http.MethodPost, base, e.user, nil), http.StatusCreated)

	rec := e.do(t, http.MethodPost, base+"/delete", e.user, indexRequest{Index: ref(0)})
	expectStatus(t, rec, http.StatusOK)
	resp := decodeBody[sessionResponse](t, rec)
	if !resp.Rejected || len(resp.State.Timeline) != 1 || resp.State.CanUndo {
		t.Errorf("delete last = %+v", resp)
	}
}

func TestSessionPlayback(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)
	base := "/api/v1/sessions/" + p.ID.String()
	expectStatus(t, e.do(t, http.MethodPost, base, e.user, nil), http.StatusCreated)

	rec := e.do(t, http.MethodPost, base+"/play", e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decodeBody[sessionResponse](t, rec)
	if !resp.State.IsPlayingAll || !resp.State.Playing {
		t.Fatalf("play = %+v", resp.State)
	}

	end := p.Timeline[0].TrimEnd()
	rec = e.do(t, http.MethodPost, base+"/tick", e.user, tickRequest{CurrentTime: ref(end)})
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.Changed == nil || !*resp.Changed || resp.State.ActiveIndex != 1 {
		t.Errorf("tick at window end = %+v", resp.State)
	}
	if resp.State.Playback.Active.Source != p.Timeline[1].URL {
		t.Errorf("active buffer = %+v", resp.State.Playback.Active)
	}

	rec = e.do(t, http.MethodPost, base+"/play", e.user, nil)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.State.IsPlayingAll {
		t.Error("second toggle should stop play-all")
	}
}

func TestSessionLoopPreview(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)
	base := "/api/v1/sessions/" + p.ID.String()
	expectStatus(t, e.do(t, http.MethodPost, base, e.user, nil), http.StatusCreated)

	rec := e.do(t, http.MethodPost, base+"/play", e.user, playRequest{All: ref(false)})
	expectStatus(t, rec, http.StatusOK)
	resp := decodeBody[sessionResponse](t, rec)
	if !resp.State.Playing || resp.State.IsPlayingAll {
		t.Fatalf("loop preview = %+v", resp.State)
	}

	rec = e.do(t, http.MethodPost, base+"/tick", e.user, tickRequest{CurrentTime: ref(p.Timeline[0].TrimEnd())})
	expectStatus(t, rec, http.StatusOK)
	resp = decodeBody[sessionResponse](t, rec)
	if resp.Changed == nil || *resp.Changed || resp.State.ActiveIndex != 0 {
		t.Errorf("loop preview advanced: %+v", resp.State)
	}
	if resp.State.Playback.Active.Position != p.Timeline[0].TrimStart {
		t.Errorf("active buffer = %+v", resp.State.Playback.Active)
	}
}

func TestSessionRoutesRequireArguments(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)
	base := "/api/v1/sessions/" + p.ID.String()
	expectStatus(t, e.do(t, http.MethodPost, base, e.user, nil), http.StatusCreated)

	for _, tc := range []struct {
		route string
		body  any
	}{
		{"/select", nil},
		{"/mute", nil},
		{"/delete", nil},
		{"/delete", map[string]any{}},
		{"/reorder", map[string]any{"from": 1}},
		{"/tick", nil},
		{"/drag/start", map[string]any{"mode": "move", "track_width": 500}},
		{"/drag/move", map[string]any{}},
	} {
		rec := e.do(t, http.MethodPost, base+tc.route, e.user, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s with body %v: status %d, want 400", tc.route, tc.body, rec.Code)
		}
	}

	rec := e.do(t, http.MethodGet, base, e.user, nil)
	resp := decodeBody[sessionResponse](t, rec)
	if len(resp.State.Timeline) != len(p.Timeline) || resp.State.CanUndo {
		t.Errorf("rejected requests changed the session: %+v", resp.State)
	}
}

func TestExportFlow(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)
	path := "/api/v1/projects/" + p.ID.String() + "/export"

	rec := e.do(t, http.MethodDelete, path, e.user, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = e.do(t, http.MethodPost, path, e.user, nil)
	expectStatus(t, rec, http.StatusAccepted)
	st := decodeBody[models.ExportState](t, rec)
	if st.Status != models.StatusRendering || st.RenderJobID != "job-42" {
		t.Fatalf("export = %+v", st)
	}

	rec = e.do(t, http.MethodPost, path, e.user, nil)
	expectStatus(t, rec, http.StatusConflict)

	e.renderer.mu.Lock()
	e.renderer.status = render.JobStatus{Status: render.StatusDone, URL: "https://cdn.test/final.mp4"}
	e.renderer.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = e.do(t, http.MethodGet, path, e.user, nil)
		expectStatus(t, rec, http.StatusOK)
		st = decodeBody[models.ExportState](t, rec)
		if st.Status == models.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("export never completed: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st.FinalVideoURL != "https://cdn.test/final.mp4" {
		t.Errorf("final url = %q", st.FinalVideoURL)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/projects", e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	recent := decodeBody[[]models.Project](t, rec)
	if len(recent) != 1 || recent[0].ID != p.ID {
		t.Errorf("recent = %+v", recent)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/projects?limit=zero", e.user, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestDeleteProjectClosesSession(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProject(t)
	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/sessions/"+p.ID.String(), e.user, nil), http.StatusCreated)

	rec := e.do(t, http.MethodDelete, "/api/v1/projects/"+p.ID.String(), uuid.New(), nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = e.do(t, http.MethodDelete, "/api/v1/projects/"+p.ID.String(), e.user, nil)
	expectStatus(t, rec, http.StatusOK)
	if e.handler.Sessions.Len() != 0 {
		t.Error("session still open after project delete")
	}
	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+p.ID.String(), e.user, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

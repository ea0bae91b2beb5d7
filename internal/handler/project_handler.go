package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/validation"
)

const (
	defaultProjectName = "Untitled reel"
	recentLimit        = 6
	maxRecentLimit     = 50
)

// UploadFile stores one source video. The client sends the probed metadata
// (duration, width, height) with the file; the response is the SourceClip
// to include in a create-project request.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if _, err := userID(r); err != nil {
		h.fail(w, r, err)
		return
	}

	maxSize := h.MaxUploadBytes
	if maxSize <= 0 {
		maxSize = validation.DefaultMaxFileSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if err := validation.ValidateUpload(header, maxSize); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	clip, err := clipMetadata(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateClipMetadata(clip); err != nil {
		writeError(w, http.StatusBadRequest, "invalid clip metadata", validation.FormatValidationErrors(err)...)
		return
	}

	contentType := header.Header.Get("Content-Type")
	url, err := h.Storage.Upload(file, header.Filename, contentType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	clip.URL = url

	writeJSON(w, http.StatusCreated, clip)
}

func clipMetadata(r *http.Request) (models.SourceClip, error) {
	var clip models.SourceClip
	var err error
	if clip.Duration, err = strconv.ParseFloat(r.FormValue("duration"), 64); err != nil {
		return clip, errField("duration")
	}
	if v := r.FormValue("width"); v != "" {
		if clip.Width, err = strconv.Atoi(v); err != nil {
			return clip, errField("width")
		}
	}
	if v := r.FormValue("height"); v != "" {
		if clip.Height, err = strconv.Atoi(v); err != nil {
			return clip, errField("height")
		}
	}
	return clip, nil
}

type fieldError string

func (f fieldError) Error() string { return "invalid " + string(f) }

func errField(name string) error { return fieldError(name) }

// CreateProject generates a timeline from the uploaded clips in the chosen
// style and stores it as a draft.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req validation.CreateProjectRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid project", validation.FormatValidationErrors(err)...)
		return
	}
	if req.Name == "" {
		req.Name = defaultProjectName
	}

	profile := h.Styles.Lookup(req.StyleID)
	p := &models.Project{
		UserID:   user,
		Name:     req.Name,
		StyleID:  profile.ID,
		Timeline: h.Generator.Generate(req.Clips, profile.ID),
	}
	if err := h.Projects.Create(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"project_id": p.ID,
		"style":      p.StyleID,
		"windows":    len(p.Timeline),
	}).Info("project created")
	writeJSON(w, http.StatusCreated, p)
}

// ListProjects returns the user's recently exported projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	limit := recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	projects, err := h.Projects.ListRecent(r.Context(), user, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	p, err := h.Projects.Get(r.Context(), id, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject closes any open session for the project and removes it.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	if err := h.Projects.Delete(r.Context(), id, user); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Sessions.Close(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) StartExport(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	st, err := h.Exports.Start(r.Context(), id, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *Handler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	st, err := h.Exports.Status(r.Context(), id, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CancelExport(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	if err := h.Exports.Cancel(r.Context(), id, user); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

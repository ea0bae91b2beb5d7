package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

// Sentinel errors, matched with errors.Is by the handlers.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrUnauthorized    = errors.New("unauthorized: project belongs to another user")
	ErrInvalidTimeline = errors.New("invalid timeline")
)

const (
	defaultTimeout = 5 * time.Second
	projectColumns = `id, user_id, name, style_id, timeline, version, status,
		render_job_id, final_video_url, export_error, last_exported_at, created_at, updated_at`
)

type ProjectService struct {
	DB      *sql.DB
	Dialect Dialect

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

func NewProjectService(db *sql.DB, d Dialect) *ProjectService {
	return &ProjectService{DB: db, Dialect: d}
}

func (s *ProjectService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ProjectService) q(query string) string { return s.Dialect.rebind(query) }

// Migrate creates the projects table if it does not exist.
func (s *ProjectService) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, stmt := range s.Dialect.schema() {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Create stores a new draft project. The timeline must hold at least one
// valid window.
func (s *ProjectService) Create(ctx context.Context, p *models.Project) error {
	if !p.Timeline.Valid() {
		return ErrInvalidTimeline
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	timelineJSON, err := json.Marshal(p.Timeline)
	if err != nil {
		return err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.now()
	p.Version = 1
	p.Status = models.StatusDraft
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = s.DB.ExecContext(ctx, s.q(`
		INSERT INTO projects (id, user_id, name, style_id, timeline, version, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.UserID, p.Name, p.StyleID, string(timelineJSON), p.Version, p.Status, now, now)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get fetches a project and verifies ownership.
func (s *ProjectService) Get(ctx context.Context, id, userID uuid.UUID) (*models.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.DB.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.UserID != userID {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// ListRecent returns the user's most recently exported projects, newest first.
func (s *ProjectService) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.Project, error) {
	if limit <= 0 {
		limit = 6
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE user_id = ? AND status = ?
		ORDER BY last_exported_at DESC
		LIMIT ?
	`), userID, models.StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// ListRendering returns every project whose export has not settled yet.
func (s *ProjectService) ListRendering(ctx context.Context) ([]models.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE status = ?`), models.StatusRendering)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// SaveTimeline persists the timeline and bumps the version counter. It
// returns the new version.
func (s *ProjectService) SaveTimeline(ctx context.Context, id uuid.UUID, tl models.Timeline) (int, error) {
	if !tl.Valid() {
		return 0, ErrInvalidTimeline
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	timelineJSON, err := json.Marshal(tl)
	if err != nil {
		return 0, err
	}

	var version int
	err = s.DB.QueryRowContext(ctx, s.q(`
		UPDATE projects
		SET timeline   = ?,
		    version    = version + 1,
		    updated_at = ?
		WHERE id = ?
		RETURNING version
	`), string(timelineJSON), s.now(), id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProjectNotFound
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Delete permanently removes a project owned by userID.
func (s *ProjectService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.DB.ExecContext(ctx, s.q(`DELETE FROM projects WHERE id = ?`), id)
	return err
}

// MarkRendering records a submitted render job and clears the previous
// export outcome.
func (s *ProjectService) MarkRendering(ctx context.Context, id uuid.UUID, jobID string) error {
	return s.updateExport(ctx, `
		UPDATE projects
		SET status = ?, render_job_id = ?, final_video_url = '', export_error = '', updated_at = ?
		WHERE id = ?
	`, models.StatusRendering, jobID, s.now(), id)
}

// CompleteExport stores the finished video URL.
func (s *ProjectService) CompleteExport(ctx context.Context, id uuid.UUID, url string) error {
	now := s.now()
	return s.updateExport(ctx, `
		UPDATE projects
		SET status = ?, final_video_url = ?, export_error = '', last_exported_at = ?, updated_at = ?
		WHERE id = ?
	`, models.StatusCompleted, url, now, now, id)
}

// FailExport records why the export did not finish. The timeline is left as is.
func (s *ProjectService) FailExport(ctx context.Context, id uuid.UUID, msg string) error {
	return s.updateExport(ctx, `
		UPDATE projects
		SET status = ?, export_error = ?, updated_at = ?
		WHERE id = ?
	`, models.StatusFailed, msg, s.now(), id)
}

func (s *ProjectService) updateExport(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.DB.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrProjectNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	var timelineJSON []byte
	var exportedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.StyleID,
		&timelineJSON,
		&p.Version,
		&p.Status,
		&p.RenderJobID,
		&p.FinalVideoURL,
		&p.ExportError,
		&exportedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(timelineJSON) > 0 {
		if err := json.Unmarshal(timelineJSON, &p.Timeline); err != nil {
			return nil, fmt.Errorf("decode timeline of %s: %w", p.ID, err)
		}
	}
	if exportedAt.Valid {
		t := exportedAt.Time
		p.LastExportedAt = &t
	}
	return p, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Project statuses. A project starts as a draft, moves to rendering when an
// export is submitted and settles on completed or failed when the poll ends.
const (
	StatusDraft     = "draft"
	StatusRendering = "rendering"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Project struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`

	StyleID  string   `json:"style_id"`
	Timeline Timeline `json:"timeline"`

	Version int    `json:"version"`
	Status  string `json:"status"`

	// Export fields are written by the render poll job only.
	RenderJobID    string     `json:"render_job_id,omitempty"`
	FinalVideoURL  string     `json:"final_video_url,omitempty"`
	ExportError    string     `json:"export_error,omitempty"`
	LastExportedAt *time.Time `json:"last_exported_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExportState is the slice of a project the export status endpoint reports.
type ExportState struct {
	ProjectID     uuid.UUID  `json:"project_id"`
	Status        string     `json:"status"`
	RenderJobID   string     `json:"render_job_id,omitempty"`
	FinalVideoURL string     `json:"final_video_url,omitempty"`
	Error         string     `json:"error,omitempty"`
	ExportedAt    *time.Time `json:"exported_at,omitempty"`
}

func (p *Project) ExportState() ExportState {
	return ExportState{
		ProjectID:     p.ID,
		Status:        p.Status,
		RenderJobID:   p.RenderJobID,
		FinalVideoURL: p.FinalVideoURL,
		Error:         p.ExportError,
		ExportedAt:    p.LastExportedAt,
	}
}

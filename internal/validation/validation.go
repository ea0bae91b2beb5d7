package validation

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
)

const (
	DefaultMaxFileSize = 200 * 1024 * 1024 // 200MB
	MaxClipsPerProject = 50
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidFileType = errors.New("invalid file type - only mp4, mov, webm allowed")
	ErrFilenameTooLong = errors.New("filename too long - maximum 255 characters")
	ErrEmptyFile       = errors.New("file is empty")
)

var AllowedMimeTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateUpload checks an uploaded file before it is stored. maxSize <= 0
// means DefaultMaxFileSize.
func ValidateUpload(fileHeader *multipart.FileHeader, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	if fileHeader.Size == 0 {
		return ErrEmptyFile
	}

	if fileHeader.Size > maxSize {
		return fmt.Errorf("%w - maximum %dMB allowed", ErrFileTooLarge, maxSize>>20)
	}

	if len(fileHeader.Filename) > 255 {
		return ErrFilenameTooLong
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = guessContentType(fileHeader.Filename)
	}

	if !AllowedMimeTypes[contentType] {
		return ErrInvalidFileType
	}

	return nil
}

func guessContentType(filename string) string {
	typeMap := map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
	}

	if ct, ok := typeMap[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}

	return "application/octet-stream"
}

// ValidateClipMetadata checks the probed metadata of an upload before a URL
// has been assigned to it.
func ValidateClipMetadata(c models.SourceClip) error {
	return validate.StructExcept(c, "URL")
}

// ValidateSourceClip rejects metadata no window can be cut from: missing
// URL, a duration under the minimum window length or a negative size.
func ValidateSourceClip(c models.SourceClip) error {
	return validate.Struct(c)
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name    string              `json:"name" validate:"max=255"`
	StyleID string              `json:"style_id" validate:"required,max=64"`
	Clips   []models.SourceClip `json:"clips" validate:"required,min=1,max=50,dive"`
}

// Struct validates any request type carrying validate tags.
func Struct(v any) error {
	return validate.Struct(v)
}

// FormatValidationErrors turns validator errors into messages for API
// responses. Other errors are returned as a single message.
func FormatValidationErrors(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fieldPath(fe), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Package config reads service settings from the environment. Outside
// production a .env file in the working directory is loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string `validate:"required"`
	Port   string `validate:"required,numeric"`

	DatabaseDriver string `validate:"oneof=postgres sqlite"`
	DatabaseURL    string `validate:"required"`

	UploadDir      string   `validate:"required"`
	BaseURL        string   `validate:"omitempty,url"`
	AllowedOrigins []string `validate:"min=1,dive,required"`
	MaxUploadBytes int64    `validate:"gt=0"`

	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=text json auto"`

	RenderEndpoint   string        `validate:"required,url"`
	RenderAPIKey     string        `validate:"required_if=AppEnv production"`
	RenderOutput     string        `validate:"required"`
	RenderResolution string        `validate:"oneof=preview mobile sd hd 1080"`
	PollInterval     time.Duration `validate:"gt=0"`
	RenderTimeout    time.Duration `validate:"gt=0"`
	PollMaxErrors    int           `validate:"gte=0"`

	ExportWorkers int `validate:"gte=1"`
	ExportQueue   int `validate:"gte=1"`

	StylesFile string
}

func (c Config) Production() bool { return c.AppEnv == "production" }

// Load reads the configuration and validates it.
func Load() (Config, error) {
	// Production injects env vars through infra; .env is a dev convenience.
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults for
// anything unset.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		AppEnv:           e.str("APP_ENV", "development"),
		Port:             e.str("PORT", "8083"),
		DatabaseDriver:   e.str("DATABASE_DRIVER", "postgres"),
		DatabaseURL:      e.str("DATABASE_URL", ""),
		UploadDir:        e.str("UPLOAD_DIR", "./uploads"),
		BaseURL:          e.str("BASE_URL", ""),
		AllowedOrigins:   e.list("ALLOWED_ORIGINS", "http://localhost:5173"),
		MaxUploadBytes:   int64(e.int("MAX_UPLOAD_MB", 200)) << 20,
		LogLevel:         strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(e.str("LOG_FORMAT", "auto")),
		RenderEndpoint:   e.str("RENDER_ENDPOINT", "https://api.shotstack.io/edit/stage"),
		RenderAPIKey:     e.str("RENDER_API_KEY", ""),
		RenderOutput:     e.str("RENDER_FORMAT", "mp4"),
		RenderResolution: e.str("RENDER_RESOLUTION", "sd"),
		PollInterval:     e.duration("RENDER_POLL_INTERVAL", 3*time.Second),
		RenderTimeout:    e.duration("RENDER_TIMEOUT", 10*time.Minute),
		PollMaxErrors:    e.int("RENDER_POLL_MAX_ERRORS", 3),
		ExportWorkers:    e.int("EXPORT_WORKERS", 4),
		ExportQueue:      e.int("EXPORT_QUEUE", 64),
		StylesFile:       e.str("STYLES_FILE", ""),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if cfg.DatabaseURL == "" && cfg.DatabaseDriver == "sqlite" {
		cfg.DatabaseURL = "./data/katkut.db"
	}
	if e.err != nil {
		return cfg, e.err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field in one error.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) list(key, def string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, def), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

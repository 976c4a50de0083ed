package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/AkatukiSora/powerlog-replay/internal/replay"
)

// FieldError is a validation failure of one configuration field.
type FieldError struct {
	// Field is the dotted YAML path, e.g. "watch.poll_interval".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d invalid fields:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate returns a ValidationError listing every invalid field, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	if strings.TrimSpace(cfg.Database.Path) == "" {
		errs = append(errs, FieldError{Field: "database.path", Message: "must not be empty"})
	}
	if d := cfg.Watch.PollInterval; d < minimumPollInterval || d > maximumPollInterval {
		errs = append(errs, FieldError{
			Field:   "watch.poll_interval",
			Message: fmt.Sprintf("must be between %s and %s, got %s", minimumPollInterval, maximumPollInterval, d),
		})
	}
	for i, dir := range cfg.Watch.LogDirs {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("watch.log_dirs[%d]", i), Message: "must not be empty"})
		}
	}
	if _, err := replay.ParseFormat(cfg.Render.Format); err != nil {
		errs = append(errs, FieldError{Field: "render.format", Message: err.Error()})
	}
	if strings.Trim(cfg.Render.Indent, " \t") != "" {
		errs = append(errs, FieldError{Field: "render.indent", Message: "may only contain spaces and tabs"})
	}
	if addr := cfg.Metrics.Address; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, FieldError{Field: "metrics.address", Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

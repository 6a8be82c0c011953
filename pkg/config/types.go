package config

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies the syntax of a configuration source.
type Format string

const (
	// FormatYAML covers .yaml, .yml and .json sources.
	FormatYAML Format = "yaml"

	// FormatCUE covers .cue sources.
	FormatCUE Format = "cue"

	// FormatStarlark covers .star sources. Top-level globals become components.
	FormatStarlark Format = "starlark"
)

// FormatOf returns the format for a file path based on its extension.
func FormatOf(path string) (Format, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"), strings.HasSuffix(lower, ".json"):
		return FormatYAML, true
	case strings.HasSuffix(lower, ".cue"):
		return FormatCUE, true
	case strings.HasSuffix(lower, ".star"):
		return FormatStarlark, true
	default:
		return "", false
	}
}

// Settings holds the command line settings of the assembler.
type Settings struct {
	// Files lists configuration files or directories to load.
	Files []string `json:"files" validate:"min=1,dive,required"`

	// IDs restricts assembly to these components and their references.
	IDs []string `json:"ids,omitempty" validate:"dive,required"`

	// PolicyPaths lists Rego policy files or directories to enforce.
	PolicyPaths []string `json:"policy_paths,omitempty" validate:"dive,required"`

	// AllowedNamespaces restricts create-ref namespaces when policies run.
	AllowedNamespaces []string `json:"allowed_namespaces,omitempty" validate:"dive,required"`

	// SchemaPaths lists CUE files with per-constructor component schemas.
	SchemaPaths []string `json:"schema_paths,omitempty" validate:"dive,required"`

	// LogLevel is the minimum log level.
	LogLevel string `json:"log_level" validate:"required,oneof=trace debug info warn error"`

	// Output is the rendering format of command results.
	Output string `json:"output" validate:"required,oneof=yaml json"`

	// GraphKind selects the graph rendered by the graph command.
	GraphKind string `json:"graph_kind,omitempty" validate:"omitempty,oneof=merge refs"`

	// StarlarkTimeout bounds the execution of each Starlark source.
	StarlarkTimeout time.Duration `json:"starlark_timeout" validate:"min=0"`

	// WatchDebounce is the quiet period before a watch reload.
	WatchDebounce time.Duration `json:"watch_debounce" validate:"min=0"`

	// MetricsAddr exposes Prometheus metrics while watching when set.
	MetricsAddr string `json:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// DefaultSettings returns settings with defaults applied.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:        "info",
		Output:          "yaml",
		StarlarkTimeout: 30 * time.Second,
		WatchDebounce:   500 * time.Millisecond,
	}
}

// SourceError is a configuration problem with location information.
type SourceError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e SourceError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	default:
		return e.Message
	}
}

// SourceErrors collects every problem found in a set of sources.
type SourceErrors []SourceError

// Error implements the error interface.
func (e SourceErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, se := range e {
		parts[i] = se.Error()
	}
	return fmt.Sprintf("%d configuration errors:\n  %s", len(e), strings.Join(parts, "\n  "))
}

// DuplicateComponentError reports a component ID defined by more than one source.
type DuplicateComponentError struct {
	ID    string
	First string
	Again string
}

// Error implements the error interface.
func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("component %s defined in both %s and %s", e.ID, e.First, e.Again)
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// Package apperr defines the error kinds shared by the sync packages.
//
// Callers classify failures with errors.Is against the sentinels below;
// concrete errors wrap them with fmt.Errorf("%w: ...").
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidFormat marks malformed JSON/YAML or an unexpected top-level shape.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnreachable marks a backend that could not be contacted.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrRemoteFailure marks a backend response with a non-zero code or error status.
	ErrRemoteFailure = errors.New("remote failure")

	// ErrLocalIO marks a local file read, write or permission failure.
	ErrLocalIO = errors.New("local I/O failure")

	// ErrPartialFailure marks a run where some languages failed.
	ErrPartialFailure = errors.New("partial failure")
)

// LanguageFailure records why a single language failed.
type LanguageFailure struct {
	Language string
	Path     string
	Err      error
}

// PartialFailure aggregates per-language failures of one operation.
type PartialFailure struct {
	Op       string
	Failures []LanguageFailure
}

// NewPartialFailure returns a PartialFailure with failures sorted by language.
func NewPartialFailure(op string, failures []LanguageFailure) *PartialFailure {
	sorted := make([]LanguageFailure, len(failures))
	copy(sorted, failures)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Language != sorted[j].Language {
			return sorted[i].Language < sorted[j].Language
		}
		return sorted[i].Path < sorted[j].Path
	})
	return &PartialFailure{Op: op, Failures: sorted}
}

func (e *PartialFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d language(s) failed", e.Op, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Language)
		if f.Path != "" {
			b.WriteString(" (")
			b.WriteString(f.Path)
			b.WriteString(")")
		}
		if f.Err != nil {
			b.WriteString(": ")
			b.WriteString(f.Err.Error())
		}
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrPartialFailure.
func (e *PartialFailure) Unwrap() error {
	return ErrPartialFailure
}

// Languages returns the failing language codes in report order.
func (e *PartialFailure) Languages() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Language)
	}
	return out
}

package pipeline

import (
	"encoding/json"
	"sort"

	"github.com/samber/lo"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

// Status is the result of one language in an operation.
type Status string

const (
	StatusOK        Status = "ok"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome records what happened to one language file.
type Outcome struct {
	Language string `json:"language"`
	Path     string `json:"path,omitempty"`
	Status   Status `json:"status"`
	Keys     int    `json:"keys"`

	// Detail explains a skipped or failed outcome.
	Detail string `json:"detail,omitempty"`

	// Validation is the backend's upload verdict, passed through untouched.
	Validation json.RawMessage `json:"validation,omitempty"`

	Err error `json:"-"`
}

func failed(language, path string, err error) Outcome {
	return Outcome{Language: language, Path: path, Status: StatusFailed, Detail: err.Error(), Err: err}
}

func skipped(language, path, why string) Outcome {
	return Outcome{Language: language, Path: path, Status: StatusSkipped, Detail: why}
}

// Report is the result of one push, download or pull.
type Report struct {
	Op       string    `json:"op"`
	DryRun   bool      `json:"dryRun,omitempty"`
	Outcomes []Outcome `json:"outcomes"`
}

func newReport(op string, outcomes ...[]Outcome) *Report {
	r := &Report{Op: op, Outcomes: lo.Flatten(outcomes)}
	sort.SliceStable(r.Outcomes, func(i, j int) bool {
		a, b := r.Outcomes[i], r.Outcomes[j]
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.Path < b.Path
	})
	if r.Outcomes == nil {
		r.Outcomes = []Outcome{}
	}
	return r
}

// Count returns how many outcomes have the given status.
func (r *Report) Count(s Status) int {
	return lo.CountBy(r.Outcomes, func(o Outcome) bool { return o.Status == s })
}

// Err returns a *apperr.PartialFailure listing the failed languages, or nil
// when nothing failed.
func (r *Report) Err() error {
	failures := lo.FilterMap(r.Outcomes, func(o Outcome, _ int) (apperr.LanguageFailure, bool) {
		return apperr.LanguageFailure{Language: o.Language, Path: o.Path, Err: o.Err}, o.Status == StatusFailed
	})
	if len(failures) == 0 {
		return nil
	}
	return apperr.NewPartialFailure(r.Op, failures)
}

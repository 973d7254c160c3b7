// Package progress shows per-language progress on an interactive stderr.
package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar counts completed languages. A nil or disabled Bar does nothing, so
// callers never need to check whether progress is shown.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar of total steps writing to w. When enabled is false the
// returned bar is a no-op.
func New(w io.Writer, total int, description string, enabled bool) *Bar {
	if !enabled || total <= 0 {
		return &Bar{}
	}
	return &Bar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)}
}

// Step marks one item done. Safe for concurrent use.
func (b *Bar) Step() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(1)
}

// Done fills the bar.
func (b *Bar) Done() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}

// Current reports the number of completed steps.
func (b *Bar) Current() int64 {
	if b == nil || b.bar == nil {
		return 0
	}
	return b.bar.State().CurrentNum
}

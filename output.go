package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lexiaoyao20/i18n-app/internal/pipeline"
)

// outputStrings prints a list of strings in text or JSON format.
func outputStrings(w io.Writer, items []string, format, label string) error {
	if format == "json" {
		return writeJSON(w, items)
	}

	if len(items) == 0 {
		fmt.Fprintf(w, "No %s found.\n", label)
		return nil
	}

	fmt.Fprintf(w, "Found %d %s:\n", len(items), label)
	for _, item := range items {
		fmt.Fprintf(w, "  %s\n", item)
	}
	return nil
}

// printReport prints the result of a push, download or pull.
func printReport(w io.Writer, r *pipeline.Report, format string) error {
	if format == "json" {
		return writeJSON(w, r)
	}

	title := r.Op
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "%s: %d ok, %d unchanged, %d skipped, %d failed\n", title,
		r.Count(pipeline.StatusOK),
		r.Count(pipeline.StatusUnchanged),
		r.Count(pipeline.StatusSkipped),
		r.Count(pipeline.StatusFailed))

	for _, o := range r.Outcomes {
		path := o.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "  %-10s %-30s %-9s %5d", o.Language, path, o.Status, o.Keys)
		if o.Detail != "" {
			fmt.Fprintf(w, "  %s", o.Detail)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lexiaoyao20/i18n-app/internal/config"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
	"github.com/lexiaoyao20/i18n-app/internal/langfile"
)

// localeCheck compares one language with the base language.
type localeCheck struct {
	Language string   `json:"language"`
	Missing  []string `json:"missing"`
	Stale    []string `json:"stale"`
}

func (c localeCheck) passed() bool {
	return len(c.Missing) == 0 && len(c.Stale) == 0
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		format, locale string
		list           bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Lint check: keys missing from or stale in each language",
		Long: `Compare every local language with the base language without
contacting the backend. A key is missing when the base language has it
and the other language does not; it is stale the other way round.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validFormat("format", format); err != nil {
				return err
			}
			project, err := a.project(cmd)
			if err != nil {
				return err
			}
			checks, err := checkLocales(cmd.Context(), a, project, locale)
			if err != nil {
				return err
			}
			return printChecks(a.stdout, project.Config.BaseLanguage, checks, format, list)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json")
	cmd.Flags().StringVar(&locale, "locale", "", "Check only this language")
	cmd.Flags().BoolVar(&list, "list", false, "List the offending keys")
	return cmd
}

// checkLocales loads the project's translation files, merging files of the
// same language, and compares each language with the base language.
func checkLocales(ctx context.Context, a *app, project config.Project, locale string) ([]localeCheck, error) {
	cfg := project.Config
	entries, err := langfile.New(a.fs, project.Root, cfg.Include, cfg.Exclude).List(ctx)
	if err != nil {
		return nil, err
	}

	languages := map[string]*flat.Map{}
	for _, e := range entries {
		m, err := e.Load()
		if err != nil {
			return nil, err
		}
		if languages[e.Language] == nil {
			languages[e.Language] = flat.New()
		}
		languages[e.Language].Merge(m)
	}

	base, ok := languages[cfg.BaseLanguage]
	if !ok {
		return nil, fmt.Errorf("base language %s not found in local translations", cfg.BaseLanguage)
	}
	if locale != "" {
		if _, ok := languages[locale]; !ok {
			return nil, fmt.Errorf("no local translation for %s", locale)
		}
	}

	codes := lo.Filter(lo.Keys(languages), func(code string, _ int) bool {
		return code != cfg.BaseLanguage && (locale == "" || code == locale)
	})
	sort.Strings(codes)

	return lo.Map(codes, func(code string, _ int) localeCheck {
		other := languages[code]
		missing := flat.Missing(base, other).Keys()
		stale := flat.Stale(base, other)
		return localeCheck{
			Language: code,
			Missing:  append([]string{}, missing...),
			Stale:    append([]string{}, stale...),
		}
	}), nil
}

func printChecks(w io.Writer, baseLanguage string, checks []localeCheck, format string, list bool) error {
	failed := lo.CountBy(checks, func(c localeCheck) bool { return !c.passed() })

	if format == "json" {
		if err := writeJSON(w, checks); err != nil {
			return err
		}
	} else {
		printResult := func(label string, count int) {
			status := "OK"
			if count > 0 {
				status = "FAIL"
			}
			fmt.Fprintf(w, "  %-30s %3d  %s\n", label+":", count, status)
		}

		if len(checks) == 0 {
			fmt.Fprintf(w, "No languages besides %s found.\n", baseLanguage)
		}
		for _, c := range checks {
			printResult("keys missing from "+c.Language, len(c.Missing))
			printResult("stale keys in "+c.Language, len(c.Stale))
		}
		if list {
			for _, c := range checks {
				if len(c.Missing) > 0 {
					_ = outputStrings(w, c.Missing, format, "missing keys in "+c.Language)
				}
				if len(c.Stale) > 0 {
					_ = outputStrings(w, c.Stale, format, "stale keys in "+c.Language)
				}
			}
		}
		if failed == 0 {
			fmt.Fprintln(w, "All checks passed.")
		}
	}

	if failed > 0 {
		return fmt.Errorf("checks failed")
	}
	return nil
}

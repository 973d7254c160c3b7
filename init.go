package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiaoyao20/i18n-app/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName + " into the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wd, err := a.getwd()
			if err != nil {
				return fmt.Errorf("getting working directory: %w", err)
			}
			path, err := config.Init(a.fs, wd)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created %s\n", path)
			fmt.Fprintln(a.stdout, "Update host, subSystemName, productCode, versionNo, baseLanguage and include before running push.")
			fmt.Fprintln(a.stdout, `Set "fillMissing": true to also upload keys missing from a language, using the base language text.`)
			return nil
		},
	}
}

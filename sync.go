package main

import (
	"github.com/spf13/cobra"

	"github.com/lexiaoyao20/i18n-app/internal/langfile"
	"github.com/lexiaoyao20/i18n-app/internal/pipeline"
)

func newPushCmd(a *app) *cobra.Command {
	var (
		opts   pipeline.PushOptions
		report string
	)
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload new and changed keys to the backend",
		Long: `Upload every local key that the backend does not have yet, or holds
with a different value. When nothing is published yet, or the backend
cannot report what it holds, every local key is uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validFormat("report", report); err != nil {
				return err
			}
			p, err := a.pipeline(cmd)
			if err != nil {
				return err
			}
			r, err := p.Push(cmd.Context(), opts)
			return a.finish(r, err, report)
		},
	}
	cmd.Flags().StringVarP(&opts.Root, "path", "p", "", "directory to scan for translation files (default: project root)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute and log the changes without uploading them")
	cmd.Flags().StringVar(&report, "report", "text", "report format: text, json")
	return cmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var (
		opts           pipeline.DownloadOptions
		format, report string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the published translations for review",
		Long: `Download the newest published file of every language into a
directory, replacing whatever it held before. Project files are left
untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validFormat("report", report); err != nil {
				return err
			}
			opts.Format = langfile.Format(format)
			p, err := a.pipeline(cmd)
			if err != nil {
				return err
			}
			r, err := p.Download(cmd.Context(), opts)
			return a.finish(r, err, report)
		},
	}
	cmd.Flags().StringVarP(&opts.Dir, "path", "p", "", "output directory (default: .i18n-app/preview under the project root)")
	cmd.Flags().StringVar(&format, "format", "json", "file format: json, yaml")
	cmd.Flags().StringVar(&report, "report", "text", "report format: text, json")
	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	var report string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Replace local translation files with the published ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validFormat("report", report); err != nil {
				return err
			}
			p, err := a.pipeline(cmd)
			if err != nil {
				return err
			}
			r, err := p.Pull(cmd.Context())
			return a.finish(r, err, report)
		},
	}
	cmd.Flags().StringVar(&report, "report", "text", "report format: text, json")
	return cmd
}

// finish prints the report, when there is one, and passes err through.
func (a *app) finish(r *pipeline.Report, err error, format string) error {
	if r != nil {
		if perr := printReport(a.stdout, r, format); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

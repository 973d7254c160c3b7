package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lexiaoyao20/i18n-app/internal/config"
	"github.com/lexiaoyao20/i18n-app/internal/logging"
	"github.com/lexiaoyao20/i18n-app/internal/pipeline"
	"github.com/lexiaoyao20/i18n-app/internal/remote"
)

// app carries everything a command needs. Tests build one around an
// in-memory filesystem and buffers.
type app struct {
	fs           afero.Fs
	stdout       io.Writer
	stderr       io.Writer
	getwd        func() (string, error)
	settingsPath string

	// Flags.
	configPath string
	verbose    bool

	settings config.Settings
}

func newApp() *app {
	return &app{
		fs:           afero.NewOsFs(),
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		getwd:        os.Getwd,
		settingsPath: config.SettingsPath(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "i18n-app",
		Short: "Synchronize translation files with the translation backend",
		Long: `i18n-app keeps a project's translation files in sync with the
translation-management backend.

It uploads new and changed keys (push), downloads the published
translations for review (download) and writes them back into the
project (pull).`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "project configuration file (default: search upwards for "+config.FileName+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(a),
		newPushCmd(a),
		newDownloadCmd(a),
		newPullCmd(a),
		newCheckCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads user settings and attaches the logger to the command context.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	settings, err := config.LoadSettings(a.fs, a.settingsPath)
	if err != nil {
		return err
	}
	a.settings = settings

	logger, err := logging.New(a.stderr, logging.Options{
		Level:   settings.Log.Level,
		Format:  settings.Log.Format,
		Verbose: a.verbose,
	})
	if err != nil {
		return err
	}
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}

// project loads the configuration named by --config, or the one found by
// walking up from the working directory.
func (a *app) project(cmd *cobra.Command) (config.Project, error) {
	if a.configPath != "" {
		path, err := filepath.Abs(a.configPath)
		if err != nil {
			return config.Project{}, err
		}
		cfg, err := config.Load(a.fs, path)
		if err != nil {
			return config.Project{}, err
		}
		return config.Project{Root: filepath.Dir(path), Config: cfg}, nil
	}

	wd, err := a.getwd()
	if err != nil {
		return config.Project{}, fmt.Errorf("getting working directory: %w", err)
	}
	project, err := config.Open(a.fs, wd)
	if err != nil {
		return config.Project{}, err
	}
	zerolog.Ctx(cmd.Context()).Debug().Str("root", project.Root).Msg("Loaded project configuration")
	return project, nil
}

// pipeline builds the sync pipeline for the current project.
func (a *app) pipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	project, err := a.project(cmd)
	if err != nil {
		return nil, err
	}

	client := remote.New(project.Config,
		remote.WithTimeout(a.settings.HTTP.Timeout.Duration),
		remote.WithRateLimit(a.settings.HTTP.RequestsPerSecond),
	)

	return pipeline.New(a.fs, project, client,
		pipeline.WithConcurrency(a.settings.Sync.Concurrency),
		pipeline.WithProgress(a.stderr, logging.IsTerminal(a.stderr)),
	), nil
}

func validFormat(flag, value string) error {
	switch value {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("invalid --%s %q (want text or json)", flag, value)
}

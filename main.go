// i18n-app synchronizes a project's translation files with the
// translation-management backend.
//
// Usage:
//
//	i18n-app <command> [flags]
//
// Run "i18n-app --help" for a list of commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, apperr.ErrPartialFailure):
		return exitPartial
	default:
		return exitFatal
	}
}

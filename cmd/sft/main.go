package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/app"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// Process exit codes.
const (
	exitOK        = 0
	exitGeneric   = 1
	exitNotFound  = 2
	exitAmbiguous = 3
	exitConflict  = 4
	exitUsage     = 5
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	var amb *sft.AmbiguousError
	if errors.As(err, &amb) {
		fmt.Fprintln(stderr, "Candidates:")
		writeRevisions(stderr, amb.Candidates)
	}
	return exitCode(err)
}

// usageError marks bad invocations: wrong arguments, unknown flags.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs wraps a cobra positional-args validator so its failures exit with
// the usage code.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := v(cmd, a); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue), strings.HasPrefix(err.Error(), "unknown command"):
		return exitUsage
	case errors.Is(err, sft.ErrSelfLink), errors.Is(err, sft.ErrDegenerateQuery):
		return exitUsage
	case errors.Is(err, sft.ErrAmbiguous):
		return exitAmbiguous
	case errors.Is(err, sft.ErrNotFound), errors.Is(err, sft.ErrNoPathFound), errors.Is(err, app.ErrNoSnapshot):
		return exitNotFound
	case errors.Is(err, sft.ErrConflict):
		return exitConflict
	default:
		return exitGeneric
	}
}

// loadConfig reads the config file ResolvePaths points at.
func loadConfig() (*config.Config, string, error) {
	paths, err := app.ResolvePaths()
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.ReadFromFile(paths.ConfigFile)
	if err != nil {
		return nil, "", fmt.Errorf("reading config (run `sft init` first): %w", err)
	}
	return cfg, paths.ConfigFile, nil
}

// newApp reads the config and creates an SFTApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Tag", "Link").
func newApp(cmd *cobra.Command, operation string, opts app.Options) (*app.SFTApp, error) {
	return newAppAt(cmd, operation, opts, slog.LevelWarn)
}

// newAppAt is newApp with records at or above level echoed to stderr.
// --verbose lowers it to debug.
func newAppAt(cmd *cobra.Command, operation string, opts app.Options, level slog.Level) (*app.SFTApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts.Stderr = cmd.ErrOrStderr()
	opts.LogLevel = level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.LogLevel = slog.LevelDebug
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.NewSFTApp(ctx, cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and folds its error into err.
func closeApp(a *app.SFTApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// out returns the printer for cmd's --format flag.
func out(cmd *cobra.Command) (*printer, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json", "yaml":
		return &printer{w: cmd.OutOrStdout(), format: format}, nil
	default:
		return nil, usagef("unknown format %q (want text, json or yaml)", format)
	}
}

// Package cli implements the carechain command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/carechain/internal/paths"
	"github.com/mesh-intelligence/carechain/internal/sqlite"
	"github.com/mesh-intelligence/carechain/pkg/provenance"
	"github.com/mesh-intelligence/carechain/pkg/types"
	"github.com/mesh-intelligence/carechain/pkg/units"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitUserError   = 1
	exitSysError    = 2
	exitChainBroken = 3
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func userErrorf(format string, args ...any) error {
	return withCode(exitUserError, fmt.Errorf(format, args...))
}

func sysErrorf(format string, args ...any) error {
	return withCode(exitSysError, fmt.Errorf(format, args...))
}

// exitCode maps a command error to its exit code. Errors raised by cobra
// itself (unknown flags, bad arguments) are user errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// app holds the state shared by one invocation's commands.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool

	settings settings
	logger   *zap.Logger
}

// NewRootCmd creates the top-level "carechain" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "carechain",
		Short: "Care event provenance for production batches",
		Long: "carechain records care events (irrigation, fertilization, harvest, ...) per\n" +
			"production batch, validates their payloads against per-type schemas, and\n" +
			"verifies each batch's hash chain.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.carechain)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/.carechain-db)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newEventTypeCmd(a))
	root.AddCommand(newEventCmd(a))
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newResourcesCmd(a))
	root.AddCommand(newTraceCmd(a))

	return root
}

// Execute runs the root command and exits with the command's exit code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// setup resolves directories, loads config.yaml, and builds the logger.
func (a *app) setup() error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysErrorf("resolve config dir: %w", err)
	}
	a.configDir = configDir

	s, err := loadSettings(configDir)
	if err != nil {
		return sysErrorf("%w", err)
	}
	a.settings = s

	logger, err := newLogger(s.LogLevel, a.verbose)
	if err != nil {
		return userErrorf("%w", err)
	}
	a.logger = logger
	return nil
}

// openStore resolves the data directory and attaches the event store. The
// caller must Detach it.
func (a *app) openStore() (*sqlite.Backend, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.settings.DataDir)
	if err != nil {
		return nil, sysErrorf("resolve data dir: %w", err)
	}

	store := sqlite.NewBackend(sqlite.WithLogger(a.logger))
	err = store.Attach(types.Config{Backend: a.settings.Backend, DataDir: dataDir})
	switch {
	case errors.Is(err, types.ErrBackendEmpty), errors.Is(err, types.ErrBackendUnknown):
		return nil, userErrorf("config: %w", err)
	case err != nil:
		return nil, sysErrorf("attach store: %w", err)
	}
	return store, nil
}

// withStore attaches the store for the duration of fn.
func (a *app) withStore(fn func(store *sqlite.Backend) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Detach(); err != nil {
			a.logger.Warn("detach store", zap.Error(err))
		}
	}()
	return fn(store)
}

func (a *app) service(source types.Source) *provenance.Service {
	return provenance.NewService(source,
		provenance.WithLogger(a.logger),
		provenance.WithResolver(units.NewResolver(a.settings.Units)),
		provenance.WithConcurrency(a.settings.Report.Concurrency),
	)
}

// resolveEventType finds a catalog entry by ID, then by name.
func resolveEventType(ctx context.Context, source types.Source, ref string) (*types.EventType, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, userErrorf("event type is required")
	}
	et, err := source.EventType(ctx, ref)
	if err == nil {
		return et, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, sysErrorf("look up event type: %w", err)
	}
	et, err = source.EventTypeByName(ctx, ref)
	if errors.Is(err, types.ErrNotFound) {
		return nil, userErrorf("event type %q not found", ref)
	}
	if err != nil {
		return nil, sysErrorf("look up event type: %w", err)
	}
	return et, nil
}

// Package cli implements the docmodel command-line interface: query and
// bulk-modify documents of the models defined in a YAML schema.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/docmodel/internal/paths"
	"github.com/mesh-intelligence/docmodel/pkg/model"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
}

// app carries the state of one invocation.
type app struct {
	flags rootFlags
	cfg   settings
}

// NewRootCmd creates the top-level "docmodel" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "docmodel",
		Short: "Query and bulk-modify typed documents",
		Long: "docmodel reads model definitions from schema.yaml and runs queries\n" +
			"and modifier updates against the configured document store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return userError(err) })

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: ./.docmodel or the user config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "sqlite data directory (default: ./.docmodel-data)")
	pf.String("backend", "", "storage backend: sqlite or mongo")
	pf.String("sync", "", "sqlite JSONL sync strategy: immediate or on_close")
	pf.String("mongo-uri", "", "mongo connection string")
	pf.String("mongo-database", "", "mongo database name")
	pf.String("schema", "", "schema file, relative to the config directory")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(
		newVersionCmd(),
		a.newInitCmd(),
		a.newModelsCmd(),
		a.newFindCmd(),
		a.newCountCmd(),
		a.newRemoveCmd(),
		a.newInsertCmd(),
	)
	root.AddCommand(a.newModifierCmds()...)
	return root
}

func (a *app) configure(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.cfg, err = loadSettings(configDir, a.flags.dataDir, cmd.Flags())
	return err
}

// withSession opens a session for fn and closes it afterwards.
func (a *app) withSession(fn func(*session) error) (err error) {
	s, err := openSession(a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

// run executes root with args and returns the exit code, printing any
// error to stderr.
func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "docmodel:", err)
		if _, _, ferr := root.Find(args); ferr != nil {
			return exitUserError
		}
		return exitCode(err)
	}
	return exitSuccess
}

// userErr marks errors caused by the invocation rather than the system.
type userErr struct{ err error }

func (e userErr) Error() string { return e.err.Error() }
func (e userErr) Unwrap() error { return e.err }

// userArgs wraps a positional-argument validator so its errors count as
// user errors.
func userArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return userError(fn(cmd, args))
	}
}

func userError(err error) error {
	if err == nil {
		return nil
	}
	return userErr{err}
}

// userSentinels are errors that always come from bad input.
var userSentinels = []error{
	model.ErrTypecast,
	model.ErrInvalidModifierPayload,
	model.ErrInvalidCondition,
	model.ErrUnknownProperty,
	model.ErrDocumentNotFound,
	types.ErrInvalidSelector,
	types.ErrInvalidUpdate,
	types.ErrInvalidDocument,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrSyncStrategyUnknown,
	types.ErrMongoURIEmpty,
}

func exitCode(err error) int {
	var ue userErr
	if errors.As(err, &ue) {
		return exitUserError
	}
	for _, s := range userSentinels {
		if errors.Is(err, s) {
			return exitUserError
		}
	}
	return exitSysError
}

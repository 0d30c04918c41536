package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
)

// version is set at release build time via -ldflags.
var version = "dev"

// Global flags shared by every subcommand.
var (
	flagConfigPath string
	flagDataDir    string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
	flagFolder     string
)

// skipConfigAnnotation marks commands (like config init) that must run
// before a config file necessarily exists.
const skipConfigAnnotation = "skip-config"

// cliContextKey is the context key CLIContext is attached under.
type cliContextKey struct{}

// CLIContext carries the loaded config and logger through to every
// subcommand's RunE, built once in the root command's PersistentPreRunE.
type CLIContext struct {
	Cfg     *config.Config
	CfgPath string
	DataDir string
	Logger  *slog.Logger
}

func cliContextFrom(ctx context.Context) (*CLIContext, bool) {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc, ok
}

func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := cliContextFrom(ctx)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "airsync-lite",
		Short:         "Peer-to-peer folder synchronization",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skip, ok := cmd.Annotations[skipConfigAnnotation]; ok && skip == "true" {
				return nil
			}

			cc, err := loadCLIContext(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.toml (default: XDG config dir)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "path to the data directory holding the sync database (default: XDG data dir)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON instead of text")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable info-level logging")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug-level logging")
	root.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress status output on stderr")
	root.PersistentFlags().StringVar(&flagFolder, "folder", "", "folder id or path to operate on (default: every folder)")
	root.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	root.AddCommand(
		newDaemonCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newConflictsCmd(),
		newResolveCmd(),
		newConfigCmd(),
	)

	return root
}

// loadCLIContext resolves the config path, loads (or defaults) the
// config, and builds the logger every subcommand shares.
func loadCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	env := config.ReadEnvOverrides()

	logger := buildLogger()

	cfgPath := config.ResolveConfigPath(env, flagConfigPath, logger)

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = env.DataDir
	}

	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	if flagFolder == "" {
		flagFolder = env.Folder
	}

	return &CLIContext{
		Cfg:     cfg,
		CfgPath: cfgPath,
		DataDir: dataDir,
		Logger:  logger,
	}, nil
}

// buildLogger returns a slog.Logger at the level requested by flags,
// defaulting to warn-level to keep routine runs quiet.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	return slog.New(h)
}

// exitOnError prints err and exits with the appropriate code: 1 for a
// precondition failure the user can fix (bad flags, missing folder, a
// denied operation), 2 when the daemon's control surface could not be
// reached at all.
func exitOnError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)

	if isControlUnavailable(err) {
		os.Exit(2)
	}

	os.Exit(1)
}

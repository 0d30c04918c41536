package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/core"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

// versionSweepInterval governs how often the daemon prunes expired
// versions, orphaned blobs, and stale tombstones in the background.
const versionSweepInterval = 1 * time.Hour

// syncEngine bundles every component bootstrap builds, so the daemon loop
// and the one-shot `sync` command can share the same wiring.
type syncEngine struct {
	db         *sql.DB
	orch       *core.SyncOrchestrator
	versions   *core.VersionStore
	tombstones *core.TombstoneStore
	folders    []*config.ResolvedFolder
}

// bootstrap opens the shared database and wires up every core component
// against cc's resolved config: the same construction sequence the
// daemon's long-running loop and a one-shot `sync` invocation both need.
func bootstrap(ctx context.Context, cc *CLIContext) (*syncEngine, error) {
	folders, err := config.ResolveFolders(cc.Cfg, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("resolving folders: %w", err)
	}

	if _, err := config.ResolvePeers(cc.Cfg); err != nil {
		return nil, fmt.Errorf("resolving devices: %w", err)
	}

	if err := os.MkdirAll(cc.DataDir, pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cc.DataDir, "airsync.db")

	db, err := core.OpenDB(ctx, dbPath, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening sync database: %w", err)
	}

	snapshots := core.NewSnapshotStore(db, cc.Logger)
	tombstones := core.NewTombstoneStore(db, cc.Logger)
	versionsDir := filepath.Join(cc.DataDir, "versions")
	versions := core.NewVersionStore(db, versionsDir, cc.Logger)

	bandwidth := core.NewBandwidthLimiter(
		int64(cc.Cfg.Performance.UploadLimitKbps),
		int64(cc.Cfg.Performance.DownloadLimitKbps),
		cc.Logger,
	)
	policy := core.NewPolicyGate(bandwidth, nil, cc.Logger)
	policy.SetSchedule(cc.Cfg.Schedules)

	transfers := core.NewTransferScheduler(bandwidth, cc.Logger, nil)

	var firstRoot string
	if len(folders) > 0 {
		firstRoot = folders[0].Path
	}

	resolver := core.NewConflictResolver(firstRoot, cc.Logger)

	orch := core.NewSyncOrchestrator(snapshots, tombstones, resolver, transfers, policy, nil, cc.Logger)

	for _, rf := range folders {
		orch.RegisterFolder(rf)

		if err := snapshots.LoadFolder(ctx, rf.ID.String()); err != nil {
			cc.Logger.Warn("loading snapshot for folder", slog.String("folder", rf.ID.String()), slog.Any("error", err))
		}
	}

	return &syncEngine{db: db, orch: orch, versions: versions, tombstones: tombstones, folders: folders}, nil
}

func (e *syncEngine) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [folder]",
		Short: "Run one sync cycle and exit",
		Long: `Runs a single plan-derivation-and-execute cycle for the given folder, or
every configured folder if none is named, then exits. If a daemon is
already running, this asks it to run the cycle instead of opening a
second copy of the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	folderID, err := resolveFolderArg(cc, args)
	if err != nil {
		return err
	}

	resp, err := callControl(cmd.Context(), cc.DataDir, ctlRequest{Op: "sync_now", FolderID: folderID})
	if err == nil {
		printStatusText(resp.Status)

		return nil
	}

	if !isControlUnavailable(err) {
		return err
	}

	engine, err := bootstrap(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.orch.SyncNow(cmd.Context(), folderID); err != nil {
		return fmt.Errorf("sync cycle: %w", err)
	}

	printStatusText(engine.orch.StatusAll())

	return nil
}

// resolveFolderArg matches either a positional folder argument or the
// --folder flag against the configured folders, returning "" (meaning
// "every folder") when neither is set.
func resolveFolderArg(cc *CLIContext, args []string) (string, error) {
	selector := flagFolder
	if len(args) > 0 {
		selector = args[0]
	}

	if selector == "" {
		return "", nil
	}

	resolved, err := config.ResolveFolders(cc.Cfg, cc.Logger)
	if err != nil {
		return "", err
	}

	rf, err := config.MatchFolder(resolved, selector)
	if err != nil {
		return "", err
	}

	return rf.ID.String(), nil
}

func newDaemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run continuously, watching folders and syncing on change",
		Long: `Runs in the foreground, watching every configured folder for local
changes and running a sync cycle on every change plus on a fixed
interval fallback. Serves the local control surface (status, pause,
resume, resolve-conflict, sync) over a Unix socket in the data
directory, so other invocations of this binary can reach it.

Send SIGHUP to reload the config file without restarting. SIGINT or
SIGTERM cancels the run loop and closes the database; work in progress
is cancelled, not waited for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "fallback sync interval, in addition to watch-triggered cycles")

	return cmd
}

func runDaemon(cmd *cobra.Command, interval time.Duration) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	pidPath := filepath.Join(cc.DataDir, "daemon.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), logger)

	engine, err := bootstrap(ctx, cc)
	if err != nil {
		return err
	}
	defer engine.Close()

	control := newControlServer(engine.orch, cc.CfgPath, logger)

	sockPath := controlSocketPath(cc.DataDir)

	go func() {
		if err := control.Serve(ctx, sockPath); err != nil {
			logger.Error("control surface stopped", slog.Any("error", err))
		}
	}()

	trigger := make(chan string, len(engine.folders))

	for _, rf := range engine.folders {
		startFolderWatcher(ctx, engine, rf, trigger, logger)
	}

	reloadOnSIGHUP(ctx, logger, func() { reloadConfig(cc, engine, logger) })

	go engine.versions.SweepLoop(ctx, versionSweepInterval)
	go pruneTombstonesLoop(ctx, engine.tombstones, versionSweepInterval, logger)

	statusf(flagQuiet, "airsync-lite daemon started, watching %d folder(s)\n", len(engine.folders))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			statusf(flagQuiet, "shutting down\n")

			return nil

		case <-ticker.C:
			runFolderCycle(ctx, engine, control, "", logger)

		case folderID := <-trigger:
			runFolderCycle(ctx, engine, control, folderID, logger)
		}
	}
}

func reloadConfig(cc *CLIContext, engine *syncEngine, logger *slog.Logger) {
	reloaded, err := config.Load(cc.CfgPath, logger)
	if err != nil {
		logger.Error("reloading config", slog.Any("error", err))

		return
	}

	cc.Cfg = reloaded

	folders, err := config.ResolveFolders(cc.Cfg, logger)
	if err != nil {
		logger.Error("re-resolving folders after reload", slog.Any("error", err))

		return
	}

	for _, rf := range folders {
		engine.orch.RegisterFolder(rf)
	}
}

func pruneTombstonesLoop(ctx context.Context, ts *core.TombstoneStore, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ts.Prune(ctx); err != nil {
				logger.Warn("pruning tombstones", slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// debounceWindow coalesces a burst of filesystem events (e.g. a large
// copy) into a single sync trigger.
const debounceWindow = 2 * time.Second

// startFolderWatcher runs rf's Watcher, applies every change to the
// SnapshotStore, and debounces a sync trigger onto trigger.
func startFolderWatcher(ctx context.Context, engine *syncEngine, rf *config.ResolvedFolder, trigger chan<- string, logger *slog.Logger) {
	folderID := rf.ID.String()
	lookup := engine.orch.Snapshots().ForFolder(folderID)

	w := core.NewWatcher(rf.Path, rf.Performance.BlockSize, lookup, logger)

	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("watcher stopped", slog.String("folder", folderID), slog.Any("error", err))
		}
	}()

	go func() {
		var debounce *time.Timer

		for {
			select {
			case ev, ok := <-w.Events():
				if !ok {
					return
				}

				applyWatchEvent(ctx, engine, rf, ev, logger)

				if debounce == nil {
					debounce = time.AfterFunc(debounceWindow, func() {
						select {
						case trigger <- folderID:
						default:
						}
					})
				} else {
					debounce.Reset(debounceWindow)
				}
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}

				return
			}
		}
	}()
}

// applyWatchEvent translates one raw watcher event into a SnapshotStore
// update, so the next sync cycle's set-difference plan sees the change
// without re-scanning the whole tree.
func applyWatchEvent(ctx context.Context, engine *syncEngine, rf *config.ResolvedFolder, ev core.WatchEvent, logger *slog.Logger) {
	folderID := rf.ID.String()

	switch ev.Kind {
	case core.EventUnlink, core.EventUnlinkDir:
		if err := engine.orch.Snapshots().Remove(ctx, folderID, ev.RelativePath); err != nil {
			logger.Warn("removing snapshot entry", slog.String("path", ev.RelativePath), slog.Any("error", err))
		}

	case core.EventAdd, core.EventChange, core.EventRename:
		full := filepath.Join(rf.Path, ev.RelativePath)

		digest, err := hashsum.HashFile(full, rf.Performance.BlockSize)
		if err != nil {
			logger.Warn("hashing changed file", slog.String("path", ev.RelativePath), slog.Any("error", err))

			return
		}

		entry := core.SnapshotEntry{
			RelativePath: ev.RelativePath,
			Size:         digest.Size,
			ContentHash:  digest.ContentHash,
			Blocks:       digest.Blocks,
			Mtime:        ev.Timestamp,
			Kind:         core.KindFile,
		}

		if err := engine.orch.Snapshots().Put(ctx, folderID, entry); err != nil {
			logger.Warn("updating snapshot entry", slog.String("path", ev.RelativePath), slog.Any("error", err))
		}
	}
}

func runFolderCycle(ctx context.Context, engine *syncEngine, control *controlServer, folderID string, logger *slog.Logger) {
	if err := engine.orch.SyncNow(ctx, folderID); err != nil {
		logger.Warn("sync cycle failed", slog.String("folder", folderID), slog.Any("error", err))
	}

	control.PublishStatus()
}

package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [folder] [duration]",
		Short: "Pause syncing for a folder, or every folder",
		Long: `Pauses the named folder, or every folder if none is given. An optional
duration argument (e.g. "2h", "30m", "1d") is accepted but only
shown in the confirmation message, not stored; resuming is always manual.

If a daemon is running, it is notified immediately over the control
surface; otherwise the change still persists to the config file and
takes effect next time a daemon starts.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runPause,
	}
}

func runPause(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	folderArgs := args

	var until time.Time

	if n := len(args); n > 0 && durationPattern.MatchString(args[n-1]) && args[n-1] != "" {
		d, err := parseDuration(args[n-1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[n-1], err)
		}

		until = time.Now().Add(d)
		folderArgs = args[:n-1]
	}

	folderID, err := resolveFolderArg(cc, folderArgs)
	if err != nil {
		return err
	}

	if err := setFolderPausedEverywhere(cmd, cc, folderID, true); err != nil {
		return err
	}

	if until.IsZero() {
		statusf(flagQuiet, "paused %s\n", folderLabel(folderID))
	} else {
		statusf(flagQuiet, "paused %s until %s (resume manually or it stays paused)\n", folderLabel(folderID), until.Format(time.RFC3339))
	}

	return nil
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [folder]",
		Short: "Resume syncing for a folder, or every folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResume,
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	folderID, err := resolveFolderArg(cc, args)
	if err != nil {
		return err
	}

	if err := setFolderPausedEverywhere(cmd, cc, folderID, false); err != nil {
		return err
	}

	statusf(flagQuiet, "resumed %s\n", folderLabel(folderID))

	return nil
}

func folderLabel(folderID string) string {
	if folderID == "" {
		return "every folder"
	}

	return folderID
}

// setFolderPausedEverywhere persists the pause bit to the config file (so
// it survives a daemon restart) and, if a daemon is reachable, also
// updates its in-memory state immediately via the control surface.
func setFolderPausedEverywhere(cmd *cobra.Command, cc *CLIContext, folderID string, paused bool) error {
	folders, err := config.ResolveFolders(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	targets := folders
	if folderID != "" {
		rf, err := config.MatchFolder(folders, folderID)
		if err != nil {
			return err
		}

		targets = []*config.ResolvedFolder{rf}
	}

	for _, rf := range targets {
		if err := config.SetFolderPaused(cc.CfgPath, rf.ID.String(), paused, cc.Logger); err != nil {
			return fmt.Errorf("updating config: %w", err)
		}
	}

	op := "pause"
	if !paused {
		op = "resume"
	}

	if _, err := callControl(cmd.Context(), cc.DataDir, ctlRequest{Op: op, FolderID: folderID}); err != nil {
		if isControlUnavailable(err) {
			statusf(flagQuiet, "note: no daemon running — change takes effect on next daemon start\n")

			return nil
		}

		return err
	}

	return nil
}

// hoursPerDay converts day durations to hours when parsing a pause duration.
const hoursPerDay = 24

// durationPattern matches durations like "30m", "2h", "1d", "1h30m".
var durationPattern = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// parseDuration parses a human-friendly duration string. Supports Go
// duration syntax (e.g. "2h30m") plus a "d" suffix for days.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}

		return d, nil
	}

	if !durationPattern.MatchString(s) || s == "" {
		return 0, fmt.Errorf("expected format like 30m, 2h, 1d, or 1h30m")
	}

	var total time.Duration

	re := regexp.MustCompile(`(\d+)([dhms])`)
	for _, match := range re.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", match[1], err)
		}

		switch match[2] {
		case "d":
			total += time.Duration(n) * hoursPerDay * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}

	return total, nil
}

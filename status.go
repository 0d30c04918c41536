package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/core"
)

func newStatusCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status [folder]",
		Short: "Show sync state for one or every folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, follow)
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "keep the connection open and print every status update as it happens")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string, follow bool) error {
	cc := mustCLIContext(cmd.Context())

	folderID, err := resolveFolderArg(cc, args)
	if err != nil {
		return err
	}

	if follow {
		return followStatus(cmd, cc, folderID)
	}

	resp, err := callControl(cmd.Context(), cc.DataDir, ctlRequest{Op: "status", FolderID: folderID})
	if err != nil {
		return err
	}

	if flagJSON {
		return printStatusJSON(resp.Status)
	}

	printStatusText(resp.Status)

	return nil
}

func followStatus(cmd *cobra.Command, cc *CLIContext, folderID string) error {
	var bar *progressbar.ProgressBar
	if !flagJSON && !flagQuiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("watching for changes"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWriter(os.Stderr),
		)
	}

	return streamControl(cmd.Context(), cc.DataDir, folderID, func(resp ctlResponse) {
		if bar != nil {
			bar.Add(1)
		}

		if flagJSON {
			printStatusJSON(resp.Status)

			return
		}

		printStatusText(resp.Status)
	})
}

func printStatusJSON(status []core.FolderStatus) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(status)
}

func printStatusText(status []core.FolderStatus) {
	if len(status) == 0 {
		fmt.Println("no folders configured")

		return
	}

	headers := []string{"FOLDER", "STATE", "PAUSED", "LAST SYNC", "CONFLICTS"}

	rows := make([][]string, 0, len(status))

	for _, st := range status {
		paused := "no"

		switch {
		case st.Paused:
			paused = "yes"
		case st.PausedByPolicy:
			paused = "policy"
		}

		rows = append(rows, []string{
			st.FolderID,
			stateColor(st.State.String()),
			paused,
			formatTime(st.LastCycleAt),
			fmt.Sprintf("%d", st.PendingConflicts),
		})
	}

	printTable(os.Stdout, headers, rows)

	for _, st := range status {
		if st.LastError != "" {
			fmt.Printf("%s: last error: %s\n", st.FolderID, st.LastError)
		}
	}
}

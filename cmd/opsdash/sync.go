package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/opsdash/internal/sync"
)

var (
	syncDirection  string
	syncUserID     string
	syncJSONOutput bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the local store with the remote",
	Long:  "Runs one push, pull, or push-then-pull against the configured remote and prints the per-collection report.",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncDirection, "direction", string(sync.DirectionBoth),
		"Sync direction: push, pull, or both")
	syncCmd.Flags().StringVar(&syncUserID, "user", "",
		"User id to sync (defaults to sync.user_id)")
	syncCmd.Flags().BoolVar(&syncJSONOutput, "json", false,
		"Output in JSON format")
}

func runSync(cmd *cobra.Command, args []string) error {
	direction, err := sync.ParseDirection(syncDirection)
	if err != nil {
		return err
	}

	cfg, st, err := loadLocal()
	if err != nil {
		return err
	}
	if !cfg.Remote.Configured() {
		st.Close()
		return errors.New("remote not configured: set OPSDASH_REMOTE_URL")
	}

	ctx := cmd.Context()
	pg, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		st.Close()
		return err
	}
	defer closeAll(st, pg)

	userID := syncUserID
	if userID == "" {
		userID = cfg.Sync.UserID
	}

	report, err := newEngine(st, pg, cfg.Sync).Sync(ctx, userID, direction)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if syncJSONOutput {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("sync finished with %d failed collections", n)
	}
	return nil
}

func printReport(cmd *cobra.Command, r *sync.Report) {
	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "TABLE\tDIRECTION\tITEMS\tATTEMPTS\tSTATUS")
	for _, res := range r.Results {
		status := "ok"
		switch {
		case res.Error != "":
			status = res.Error
		case res.Skipped:
			status = "skipped"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", res.Table, res.Direction, res.Items, res.Attempts, status)
	}
	w.Flush()
}

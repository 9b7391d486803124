package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var infoJSONOutput bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show local store size and collection counts",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSONOutput, "json", false,
		"Output in JSON format")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, st, err := loadLocal()
	if err != nil {
		return err
	}
	defer st.Close()

	stats := st.Stats(cmd.Context())
	out := cmd.OutOrStdout()

	if infoJSONOutput {
		return printJSON(out, map[string]any{
			"backend":     cfg.Local.Backend,
			"size_bytes":  stats.SizeBytes,
			"quota_bytes": cfg.Local.QuotaBytes,
			"collections": stats.Collections,
		})
	}

	fmt.Fprintf(out, "Backend:        %s\n", cfg.Local.Backend)
	fmt.Fprintf(out, "Size:           %s\n", humanize.IBytes(uint64(max(stats.SizeBytes, 0))))
	if cfg.Local.QuotaBytes > 0 {
		fmt.Fprintf(out, "Quota:          %s\n", humanize.IBytes(uint64(cfg.Local.QuotaBytes)))
	} else {
		fmt.Fprintln(out, "Quota:          unbounded")
	}

	names := make([]string, 0, len(stats.Collections))
	for name := range stats.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	w := newTabWriter(out)
	fmt.Fprintln(w, "COLLECTION\tITEMS")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, humanize.Comma(int64(stats.Collections[name])))
	}
	return w.Flush()
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/opsdash/internal/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Manage anchor metrics",
}

var metricsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the starter metrics when none are configured",
	Args:  cobra.NoArgs,
	RunE:  runMetricsSeed,
}

func init() {
	metricsCmd.AddCommand(metricsSeedCmd)
}

func runMetricsSeed(cmd *cobra.Command, args []string) error {
	_, st, err := loadLocal()
	if err != nil {
		return err
	}
	defer st.Close()

	n := metrics.SeedDefaults(cmd.Context(), st, st.Now())
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Metrics already configured, nothing seeded")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d default metrics\n", n)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinel-sim/internal/dashboard"
)

var (
	dashboardOut string
	dashboardUID string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboard for the GreptimeDB export",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		paths, err := dashboard.Render(dashboardOut, dashboard.Options{
			Table:         cfg.Sinks.Greptime.Table,
			DatasourceUID: dashboardUID,
			OnlineWindow:  cfg.Derive.OnlineTTL,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardUID, "datasource-uid", "", "Grafana datasource UID (defaults to $"+dashboard.DatasourceEnv+")")
}

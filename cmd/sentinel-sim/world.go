package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var worldSummary bool

var worldCmd = &cobra.Command{
	Use:   "world",
	Short: "Print the generated registry",
	Long:  "world builds the registry for the configured scale and seed and writes it as JSON, without starting the engine.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		reg, err := buildWorld(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if worldSummary {
			perGateway := make(map[string]int, len(reg.Gateways))
			for _, n := range reg.Nodes {
				perGateway[n.GatewayID]++
			}
			fmt.Fprintf(out, "scale=%d seed=%d gateways=%d nodes=%d\n",
				cfg.World.Scale, cfg.World.Seed, len(reg.Gateways), len(reg.Nodes))
			for _, g := range reg.Gateways {
				fmt.Fprintf(out, "%s\t%s\t%s\t%d\n", g.GatewayID, g.Backhaul, g.Region, perGateway[g.GatewayID])
			}
			return nil
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reg)
	},
}

func init() {
	worldCmd.Flags().BoolVar(&worldSummary, "summary", false, "Print one line per gateway instead of JSON")
}

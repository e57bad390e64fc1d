package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/ui"
)

func metricsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show delivery metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			m, err := client.Metrics(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				data, _ := json.MarshalIndent(m, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			ui.Banner("metrics")
			pdr := ui.Good
			if m.PDR < 0.9 {
				pdr = ui.Warn
			}
			if m.PDR < 0.5 {
				pdr = ui.Bad
			}
			fmt.Printf("  Sim time     %.1fs\n", m.Now)
			fmt.Printf("  PDR          %s\n", pdr.Sprintf("%.1f%%", m.PDR*100))
			fmt.Printf("  Avg latency  %.1f ms\n", m.AvgLatencyMs)
			fmt.Printf("  Delivered    %d\n", m.Delivered)
			fmt.Printf("  Duplicates   %d\n", m.Duplicates)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

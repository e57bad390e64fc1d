package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/dashboard"
	"github.com/meshlab/meshviz/internal/ui"
)

func statusCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"top", "dash"},
		Short:   "Live terminal dashboard of the running simulation",
		Long:    ui.Brand.Sprint(ui.Mesh+" meshviz status") + " — metrics, nodes, MQTT, routing and reconnections",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			return dashboard.Run(cmd.Context(), client, dashboard.Config{
				Server:          client.BaseURL(),
				RefreshInterval: interval,
				Poll:            cfg.Poll,
				Out:             cmd.OutOrStdout(),
				Logger:          logger.Named("dashboard"),
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Refresh interval")

	return cmd
}

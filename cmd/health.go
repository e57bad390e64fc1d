package cmd

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/ui"
)

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "health",
		Aliases: []string{"doctor", "ping"},
		Short:   "Check the simulation service and local setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.Banner("health")

			fmt.Printf("  %s  %s/%s %s\n", ui.Brand.Sprintf("%-10s", "Platform"), runtime.GOOS, runtime.GOARCH, runtime.Version())

			path := configFile()
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("  %s  %s %s\n", ui.Brand.Sprintf("%-10s", "Config"), ui.StatusIcon(true), path)
			} else {
				fmt.Printf("  %s  %s %s %s\n", ui.Brand.Sprintf("%-10s", "Config"), ui.WarnIcon(), path,
					ui.Subtle.Sprint("(defaults, run `meshviz config init`)"))
			}
			fmt.Printf("  %s  %s\n", ui.Brand.Sprintf("%-10s", "Journal"), activity.DefaultPath())

			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			start := time.Now()
			h, err := client.Health(ctx)
			if err != nil {
				fmt.Printf("  %s  %s %s\n", ui.Brand.Sprintf("%-10s", "Simulator"), ui.StatusIcon(false), client.BaseURL())
				return fmt.Errorf("simulator unreachable: %w", err)
			}
			fmt.Printf("  %s  %s %s %s\n", ui.Brand.Sprintf("%-10s", "Simulator"), ui.StatusIcon(true), client.BaseURL(),
				ui.Subtle.Sprintf("(%s, %s)", h.Status, time.Since(start).Round(time.Millisecond)))
			return nil
		},
	}

	return cmd
}

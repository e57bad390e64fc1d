package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/ui"
)

func routesCmd() *cobra.Command {
	var node int

	cmd := &cobra.Command{
		Use:     "routes",
		Aliases: []string{"routing"},
		Short:   "Show node routing tables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			tables, err := client.Routing(ctx)
			if err != nil {
				return err
			}
			sort.Slice(tables, func(i, j int) bool { return tables[i].NodeID < tables[j].NodeID })

			ui.Banner("routing")
			var rows [][]string
			for _, t := range tables {
				if node != 0 && t.NodeID != node {
					continue
				}
				for _, r := range t.Routes {
					rows = append(rows, []string{
						strconv.Itoa(t.NodeID),
						strconv.Itoa(r.Dest),
						strconv.Itoa(r.NextHop),
						strconv.Itoa(r.Metric),
					})
				}
			}
			if len(rows) == 0 {
				fmt.Println("  No routes known yet.")
				return nil
			}
			ui.Table([]string{"Node", "Dest", "Next hop", "Metric"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&node, "node", 0, "Only show this node's table")
	_ = cmd.RegisterFlagCompletionFunc("node", nodeCompletionFunc)
	return cmd
}

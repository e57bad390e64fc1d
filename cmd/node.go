package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
)

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "node",
		Aliases: []string{"nodes"},
		Short:   "List, add, remove and move simulated nodes",
	}

	cmd.AddCommand(
		nodeListCmd(),
		nodeAddCmd(),
		nodeRemoveCmd(),
		nodeMoveCmd(),
	)
	return cmd
}

func nodeListCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List nodes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			nodes, err := client.Nodes(ctx)
			if err != nil {
				return err
			}
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

			ui.Banner("nodes")
			var rows [][]string
			for _, n := range nodes {
				if role != "" && string(n.Role) != role {
					continue
				}
				flags := ""
				if n.IsBroker {
					flags += "broker "
				}
				if n.Mobile {
					flags += fmt.Sprintf("mobile(%.1f) ", n.Speed)
				}
				if !n.Awake {
					flags += "asleep"
				}
				rows = append(rows, []string{
					strconv.Itoa(n.ID),
					string(n.Role),
					string(n.Phy),
					fmt.Sprintf("(%.0f, %.0f)", n.X, n.Y),
					fmt.Sprintf("%.1f%%", n.Energy),
					flags,
				})
			}
			if len(rows) == 0 {
				fmt.Println("  No nodes.")
				return nil
			}
			ui.Table([]string{"ID", "Role", "PHY", "Position", "Energy", "Flags"}, rows)
			fmt.Printf("\n  %d nodes\n", len(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Only show nodes with this role")
	return cmd
}

func nodeAddCmd() *cobra.Command {
	var (
		role, phy string
		x, y      float64
		mobile    bool
		speed     float64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a node",
		Example: `  meshviz node add --role sensor --phy BLE --x 120 --y 80
  meshviz node add --role subscriber --mobile --speed 1.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(role)
			if err != nil {
				return err
			}
			p, err := parsePhy(phy)
			if err != nil {
				return err
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			n, err := client.CreateNode(ctx, sim.NodeCreate{Role: r, Phy: p, X: x, Y: y, Mobile: mobile, Speed: speed})
			details := fmt.Sprintf("role=%s phy=%s at (%.0f, %.0f)", r, p, x, y)
			target := ""
			if err == nil {
				target = strconv.Itoa(n.ID)
			}
			record(activity.ActionAdd, target, details, err)
			if err != nil {
				return err
			}
			fmt.Printf("  %s Added node %s (%s, %s)\n", ui.StatusIcon(true), ui.Brand.Sprint(n.ID), n.Role, n.Phy)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(sim.RoleSensor), "Role: sensor, broker, subscriber or publisher")
	cmd.Flags().StringVar(&phy, "phy", string(sim.PhyWiFi), "Radio: WiFi, BLE or Zigbee")
	cmd.Flags().Float64Var(&x, "x", 0, "X position in meters")
	cmd.Flags().Float64Var(&y, "y", 0, "Y position in meters")
	cmd.Flags().BoolVar(&mobile, "mobile", false, "Node moves around")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Speed of a mobile node in m/s")
	return cmd
}

func nodeRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "rm <id>",
		Aliases:           []string{"remove", "delete"},
		Short:             "Remove a node",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: nodeCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			err = client.DeleteNode(ctx, id)
			record(activity.ActionDelete, args[0], "", err)
			if err != nil {
				return err
			}
			fmt.Printf("  %s Removed node %d\n", ui.StatusIcon(true), id)
			return nil
		},
	}
}

func nodeMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "move <id> <x> <y>",
		Short:             "Relocate a node",
		Args:              cobra.ExactArgs(3),
		ValidArgsFunction: nodeCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			x, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid x %q", args[1])
			}
			y, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid y %q", args[2])
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			err = client.MoveNode(ctx, id, x, y)
			record(activity.ActionMove, args[0], fmt.Sprintf("to (%.0f, %.0f)", x, y), err)
			if err != nil {
				return err
			}
			fmt.Printf("  %s Moved node %d to (%.0f, %.0f)\n", ui.StatusIcon(true), id, x, y)
			return nil
		},
	}
}

package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
	"github.com/meshlab/meshviz/internal/view"
)

func trafficCmd() *cobra.Command {
	var (
		count int
		size  int
		kind  string
	)

	cmd := &cobra.Command{
		Use:   "traffic <src> <dst>",
		Short: "Enqueue packets between two nodes",
		Example: `  meshviz traffic 1 4
  meshviz traffic 2 7 -n 20 --kind BLE`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: nodeCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			dst, err := parseNodeID(args[1])
			if err != nil {
				return err
			}
			phy, err := parsePhy(kind)
			if err != nil {
				return err
			}
			if count < 1 || size < 1 {
				return fmt.Errorf("count and size must be positive")
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			req := sim.TrafficRequest{Src: src, Dst: dst, N: count, Size: size, Kind: phy}
			res, err := client.Traffic(ctx, req)
			details := fmt.Sprintf("n=%d size=%d kind=%s", count, size, phy)
			if err == nil && res.EnqueuedOK == 0 {
				err = errors.New(view.MsgNothingEnqueued)
			}
			record(activity.ActionTraffic, fmt.Sprintf("%d->%d", src, dst), details, err)
			if err != nil {
				return err
			}

			fmt.Printf("  %s Enqueued %s packets %d → %d over %s\n",
				ui.StatusIcon(true), ui.Good.Sprint(res.EnqueuedOK), src, dst, phy)
			if res.EnqueuedOK < count {
				fmt.Printf("  %s %d of %d requested were accepted\n", ui.WarnIcon(), res.EnqueuedOK, count)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of packets")
	cmd.Flags().IntVar(&size, "size", 100, "Payload size in bytes")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(sim.PhyWiFi), "Radio: WiFi, BLE or Zigbee")
	_ = cmd.RegisterFlagCompletionFunc("kind", cobra.FixedCompletions(
		[]string{string(sim.PhyWiFi), string(sim.PhyBLE), string(sim.PhyZigbee)}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

func parseNodeID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid node id %q", s)
	}
	return id, nil
}

func parsePhy(s string) (sim.Phy, error) {
	for _, p := range []sim.Phy{sim.PhyWiFi, sim.PhyBLE, sim.PhyZigbee} {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown phy %q (want WiFi, BLE or Zigbee)", s)
}

func parseRole(s string) (sim.Role, error) {
	for _, r := range []sim.Role{sim.RoleSensor, sim.RoleBroker, sim.RoleSubscriber, sim.RolePublisher} {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q (want sensor, broker, subscriber or publisher)", s)
}

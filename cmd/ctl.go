package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
)

func ctlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ctl",
		Aliases: []string{"control"},
		Short:   "Start, pause or reset the simulation",
	}

	cmd.AddCommand(
		ctlOpCmd("start", "Start or resume the simulation", (*sim.Client).Start),
		ctlOpCmd("pause", "Pause the simulation", (*sim.Client).Pause),
		ctlOpCmd("reset", "Reset the simulation to its initial state", (*sim.Client).Reset),
	)
	return cmd
}

func ctlOpCmd(op, short string, call func(*sim.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			err = call(client, ctx)
			record(activity.ActionControl, op, "", err)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			fmt.Printf("  %s Simulation %s\n", ui.StatusIcon(true), pastTense(op))
			return nil
		},
	}
}

func pastTense(op string) string {
	switch op {
	case "start":
		return "started"
	case "pause":
		return "paused"
	case "reset":
		return "reset"
	}
	return op
}

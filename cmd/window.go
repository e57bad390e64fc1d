package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/poll"
	"github.com/meshlab/meshviz/internal/view"
	"github.com/meshlab/meshviz/internal/window"
)

func windowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "window",
		Aliases: []string{"gui"},
		Short:   "Open the live topology view in a native window",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			canvas, err := window.NewCanvas()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var game *window.Game
			metrics := poll.NewFeed("metrics", cfg.Poll.Metrics.Duration, client.Metrics, nil, logger.Named("poll"))
			v := view.New(client, view.Options{
				Canvas:       canvas,
				Scale:        cfg.View.Scale,
				MaxPackets:   cfg.View.MaxPackets,
				NodeInterval: cfg.Poll.Nodes.Duration,
				Feeds:        []poll.Runner{metrics},
				Journal:      journal(),
				Notify:       func(n view.Notice) { game.Notify(n) },
				Logger:       logger.Named("view"),
			})
			game = window.NewGame(ctx, v, canvas, window.Options{
				Width:   cfg.View.Width,
				Height:  cfg.View.Height,
				Title:   "meshviz · " + client.BaseURL(),
				Metrics: metrics,
				Logger:  logger.Named("window"),
			})

			if err := v.Mount(ctx, game); err != nil {
				return err
			}
			defer v.Unmount()

			return game.Run()
		},
	}

	return cmd
}

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/poll"
	"github.com/meshlab/meshviz/internal/render"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
	"github.com/meshlab/meshviz/internal/view"
	"github.com/meshlab/meshviz/internal/webview"
)

func watchCmd() *cobra.Command {
	var (
		addr string
		fps  int
	)

	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"web", "serve"},
		Short:   "Serve the live topology view to a browser",
		Long: ui.Brand.Sprint(ui.Mesh+" meshviz watch") + " — runs the render loop headless and streams\n" +
			"each frame over a websocket to the embedded page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Web.Addr = addr
			}
			if fps > 0 {
				cfg.View.FPS = fps
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The recorder and notices are only fed after Mount, once srv is set.
			var srv *webview.Server
			rec := render.NewRecorder(cfg.View.Width, cfg.View.Height, func(f render.Frame) {
				srv.PublishFrame(f)
			})
			metrics := poll.NewFeed("metrics", cfg.Poll.Metrics.Duration, client.Metrics, func(m sim.Metrics) {
				srv.PublishMetrics(m)
			}, logger.Named("poll"))

			v := view.New(client, view.Options{
				Canvas:       rec,
				Scale:        cfg.View.Scale,
				MaxPackets:   cfg.View.MaxPackets,
				NodeInterval: cfg.Poll.Nodes.Duration,
				Feeds:        []poll.Runner{metrics},
				Journal:      journal(),
				Notify:       func(n view.Notice) { srv.Notify(n) },
				Logger:       logger.Named("view"),
			})
			srv = webview.New(webview.Config{
				Addr:   cfg.Web.Addr,
				Assets: webFS,
				Logger: logger.Named("web"),
			}, v, rec)

			if err := v.Mount(ctx, render.NewTickerDriver(cfg.View.FPS)); err != nil {
				return err
			}
			defer v.Unmount()

			ui.Banner("watch")
			fmt.Printf("  Simulator  %s\n", ui.Subtle.Sprint(client.BaseURL()))
			fmt.Printf("  Viewer     %s\n", ui.Info.Sprint("http://"+cfg.Web.Addr))
			fmt.Println(ui.Subtle.Sprint("\n  Press Ctrl+C to stop"))

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8090)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Render frames per second (default from config)")

	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/config"
	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
)

var version = "0.3.0"

var (
	webFS fs.FS

	cfgPath   string
	serverURL string
	logLevel  string

	cfg    *config.Config
	logger = zap.NewNop()
)

// SetWebFS sets the filesystem holding the browser front end.
func SetWebFS(fsys fs.FS) {
	webFS = fsys
}

var rootCmd = &cobra.Command{
	Use:   "meshviz",
	Short: "meshviz — live topology viewer for the mesh simulator",
	Long: ui.Brand.Sprint(ui.Mesh+" meshviz") + " — watch and drive a simulated IoT mesh\n" +
		ui.Subtle.Sprint("Polls the simulation service and animates traffic between nodes"),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configFile())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if serverURL != "" {
			c.Server.URL = serverURL
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		l, err := logging.Setup(c.Log)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.SetVersionTemplate("meshviz {{ .Version }}\n")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default "+config.Path()+")")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Simulation service URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		watchCmd(),
		windowCmd(),
		statusCmd(),
		trafficCmd(),
		nodeCmd(),
		mqttCmd(),
		routesCmd(),
		metricsCmd(),
		ctlCmd(),
		healthCmd(),
		logCmd(),
		configCmd(),
		completionCmd(),
	)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		ui.Bad.Fprintf(rootCmd.ErrOrStderr(), "meshviz: %v\n", err)
		return err
	}
	return nil
}

func newClient() (*sim.Client, error) {
	return sim.NewClient(cfg.Server.URL, cfg.Server.Timeout.Duration)
}

func journal() *activity.Journal {
	return activity.Open(activity.DefaultPath())
}

// commandContext bounds a one-shot request to the service.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := cfg.Server.Timeout.Duration
	if timeout <= 0 {
		timeout = sim.DefaultTimeout
	}
	return context.WithTimeout(cmd.Context(), timeout+time.Second)
}

// record journals a CLI action, logging but otherwise ignoring write failures.
func record(action, target, details string, err error) {
	if jerr := journal().Record(action, target, details, err); jerr != nil {
		logger.Debug("journal write failed", zap.Error(jerr))
	}
}

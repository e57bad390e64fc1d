package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/ui"
)

func logCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:     "log",
		Aliases: []string{"activity", "history"},
		Short:   "Show the journal of actions sent to the simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.Banner("activity log")

			entries, err := journal().Read(count)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("  No activity recorded yet.")
				fmt.Println("  Actions are logged by `meshviz traffic`, `node`, `mqtt`, `ctl` and the viewers.")
				return nil
			}

			printEntries(entries)
			fmt.Printf("\n  Showing %d most recent entries\n", len(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 20, "Number of entries to show (0 for all)")

	cmd.AddCommand(
		logSearchCmd(),
		logClearCmd(),
		logExportCmd(),
		logStatsCmd(),
	)
	return cmd
}

func logSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search journal entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := journal().Search(args[0], 50)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Printf("  No entries matching %q\n", args[0])
				return nil
			}

			ui.Banner("search results")
			printEntries(results)
			fmt.Printf("\n  %d results\n", len(results))
			return nil
		},
	}
}

func logClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := journal().Clear(); err != nil {
				return fmt.Errorf("clear journal: %w", err)
			}
			ui.Good.Printf("  %s Activity log cleared\n", ui.StatusIcon(true))
			return nil
		},
	}
}

func logExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the journal as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := journal().Read(0)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []activity.Entry{}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func logStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show journal statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.Banner("activity stats")

			entries, err := journal().Read(0)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("  No activity data")
				return nil
			}

			counts := make(map[string]int)
			failed := make(map[string]int)
			for _, e := range entries {
				counts[e.Action]++
				if !e.OK() {
					failed[e.Action]++
				}
			}
			actions := make([]string, 0, len(counts))
			for a := range counts {
				actions = append(actions, a)
			}
			sort.Strings(actions)

			fmt.Printf("  Total entries: %d\n\n", len(entries))
			var rows [][]string
			for _, a := range actions {
				rows = append(rows, []string{a, fmt.Sprint(counts[a]), fmt.Sprint(failed[a])})
			}
			ui.Table([]string{"Action", "Count", "Failed"}, rows)
			return nil
		},
	}
}

func printEntries(entries []activity.Entry) {
	var rows [][]string
	for _, e := range entries {
		detail := e.Details
		if !e.OK() {
			detail = e.Error
		}
		rows = append(rows, []string{
			e.Timestamp.Format("Jan 02 15:04:05"),
			ui.StatusIcon(e.OK()),
			e.Action,
			e.Target,
			truncateLog(detail, 40),
		})
	}
	ui.Table([]string{"Time", "", "Action", "Target", "Details"}, rows)
}

func truncateLog(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
)

func mqttCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mqtt",
		Short: "Drive and inspect the simulated MQTT layer",
	}

	cmd.AddCommand(
		mqttSubscribeCmd(),
		mqttPublishCmd(),
		mqttResetCmd(),
		mqttStatsCmd(),
		mqttTopicsCmd(),
		mqttEventsCmd(),
	)
	return cmd
}

func mqttSubscribeCmd() *cobra.Command {
	var qos int

	cmd := &cobra.Command{
		Use:               "sub <client-id> <topic>",
		Aliases:           []string{"subscribe"},
		Short:             "Subscribe a client node to a topic",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: nodeCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			if err := checkQoS(qos); err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			_, err = client.Subscribe(ctx, sim.SubscribeRequest{ClientID: id, Topic: args[1], QoS: qos})
			record(activity.ActionSubscribe, args[0], fmt.Sprintf("topic=%s qos=%d", args[1], qos), err)
			if err != nil {
				return err
			}
			fmt.Printf("  %s Node %d subscribed to %s (QoS %d)\n", ui.StatusIcon(true), id, ui.Info.Sprint(args[1]), qos)
			return nil
		},
	}

	cmd.Flags().IntVarP(&qos, "qos", "q", 0, "QoS level (0 or 1)")
	return cmd
}

func mqttPublishCmd() *cobra.Command {
	var (
		qos      int
		retained bool
	)

	cmd := &cobra.Command{
		Use:               "pub <publisher-id> <topic> <payload>",
		Aliases:           []string{"publish"},
		Short:             "Publish a message from a publisher node",
		Args:              cobra.ExactArgs(3),
		ValidArgsFunction: nodeCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNodeID(args[0])
			if err != nil {
				return err
			}
			if err := checkQoS(qos); err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			req := sim.PublishRequest{PublisherID: id, Topic: args[1], Payload: args[2], QoS: qos, Retained: retained}
			res, err := client.Publish(ctx, req)
			record(activity.ActionPublish, args[0], fmt.Sprintf("topic=%s qos=%d retained=%t", args[1], qos, retained), err)
			if err != nil {
				return err
			}
			fmt.Printf("  %s Published to %s", ui.StatusIcon(true), ui.Info.Sprint(args[1]))
			if res.Delivered > 0 {
				fmt.Printf(" (%d delivered)", res.Delivered)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().IntVarP(&qos, "qos", "q", 0, "QoS level (0 or 1)")
	cmd.Flags().BoolVarP(&retained, "retained", "r", false, "Retain the message on the broker")
	return cmd
}

func mqttResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset brokers, clients and MQTT statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			err = client.ResetMQTT(ctx)
			record(activity.ActionMQTTReset, "", "", err)
			if err != nil {
				return err
			}
			fmt.Printf("  %s MQTT state reset\n", ui.StatusIcon(true))
			return nil
		},
	}
}

func mqttStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show broker and client statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			stats, err := client.MQTTStats(ctx)
			if err != nil {
				return err
			}

			ui.Banner("mqtt")
			if len(stats.Brokers) == 0 && len(stats.Clients) == 0 {
				fmt.Println("  No MQTT activity yet.")
				return nil
			}

			var rows [][]string
			for _, id := range numericKeys(stats.Brokers) {
				b := stats.Brokers[id]
				rows = append(rows, []string{
					id,
					strconv.Itoa(b.QueueDepth),
					strconv.Itoa(b.MessagesReceived),
					strconv.Itoa(b.MessagesDelivered),
					fmt.Sprintf("%d/%d", b.QoS0Messages, b.QoS1Messages),
					strconv.Itoa(b.DuplicatesSent),
				})
			}
			if len(rows) > 0 {
				ui.Table([]string{"Broker", "Queue", "Received", "Delivered", "QoS0/1", "Dups"}, rows)
				fmt.Println()
			}

			rows = rows[:0]
			for _, id := range numericKeys(stats.Clients) {
				c := stats.Clients[id]
				rows = append(rows, []string{
					id,
					c.Role,
					ui.StatusIcon(c.Connected),
					strconv.Itoa(c.Stats.MessagesPublished),
					strconv.Itoa(c.Stats.MessagesReceived),
					strconv.Itoa(c.Stats.Reconnects),
					strings.Join(c.SubscribedTopics, ","),
				})
			}
			if len(rows) > 0 {
				ui.Table([]string{"Client", "Role", "Up", "Pub", "Recv", "Reconn", "Topics"}, rows)
			}
			return nil
		},
	}
}

func mqttTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "Show message counts per topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			topics, err := client.Topics(ctx)
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				fmt.Println("  No topics yet.")
				return nil
			}
			sort.Slice(topics, func(i, j int) bool { return topics[i].Messages > topics[j].Messages })

			var rows [][]string
			for _, t := range topics {
				rows = append(rows, []string{t.Topic, strconv.Itoa(t.Messages)})
			}
			ui.Table([]string{"Topic", "Messages"}, rows)
			return nil
		},
	}
}

func mqttEventsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"reconnections"},
		Short:   "Show recent client reconnections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			events, err := client.Reconnections(ctx)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("  No reconnections.")
				return nil
			}
			if limit > 0 && len(events) > limit {
				events = events[len(events)-limit:]
			}

			var rows [][]string
			for i := len(events) - 1; i >= 0; i-- {
				e := events[i]
				reason := e.Reason
				if reason == "" {
					reason = "-"
				}
				rows = append(rows, []string{fmt.Sprintf("%.2fs", e.Time), strconv.Itoa(e.ClientID), reason})
			}
			ui.Table([]string{"Time", "Client", "Reason"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Show at most this many events")
	return cmd
}

func checkQoS(q int) error {
	if q != 0 && q != 1 {
		return fmt.Errorf("qos must be 0 or 1, got %d", q)
	}
	return nil
}

// numericKeys sorts node-id keys by their numeric value.
func numericKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		if aerr != nil || berr != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	return keys
}

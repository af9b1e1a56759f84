package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/nfinity/nfindb/internal/events"
	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/ui"
)

// watchTopics are subscribed individually so each payload keeps its kind.
var watchTopics = []struct {
	topic string
	label string
}{
	{events.TopicDocumentPut, "put"},
	{events.TopicDocumentDeleted, "delete"},
	{events.TopicTypeDropped, "drop-type"},
	{events.TopicNamespaceDropped, "drop-namespace"},
}

type watchEvent struct {
	label string
	data  []byte
}

// eventJSON is the --json form of a received event.
type eventJSON struct {
	Event   string          `json:"event"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print document change events as they happen",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Events come from NATS; the database is never opened.
	PersistentPreRunE: localOnly,
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, _ := cmd.Flags().GetString("namespace")
		if cfg.NATSURL == "" {
			return errors.New("no NATS URL configured (set NFINDB_NATS_URL or a profile nats_url)")
		}

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchEvents(ctx, sub, cmd.OutOrStdout(), namespace)
	},
}

// watchEvents prints events from sub until ctx is done. A non-empty
// namespace filters out events for other namespaces.
func watchEvents(ctx context.Context, sub events.Subscriber, w io.Writer, namespace string) error {
	merged := make(chan watchEvent, 64)
	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	for _, wt := range watchTopics {
		ch, cancel, err := sub.Subscribe(wt.topic)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		cancels = append(cancels, cancel)
		go func(label string, ch <-chan []byte) {
			for data := range ch {
				select {
				case merged <- watchEvent{label: label, data: data}:
				case <-ctx.Done():
					return
				}
			}
		}(wt.label, ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-merged:
			line, ok := formatEvent(ev, namespace, time.Now())
			if !ok {
				continue
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
}

// formatEvent renders one event line. It reports false for events that
// the namespace filter excludes or that cannot be decoded.
func formatEvent(ev watchEvent, namespace string, now time.Time) (string, bool) {
	var p struct {
		Namespace string `json:"namespace"`
		Type      string `json:"type"`
		Key       string `json:"key"`
		Restored  bool   `json:"restored"`
	}
	if err := json.Unmarshal(ev.data, &p); err != nil {
		logger.Warn("skipping undecodable event", "event", ev.label, "err", err)
		return "", false
	}
	if namespace != "" && p.Namespace != namespace {
		return "", false
	}

	if jsonOutput {
		data, err := json.Marshal(eventJSON{Event: ev.label, Time: now.UTC(), Payload: ev.data})
		if err != nil {
			return "", false
		}
		return string(data), true
	}

	var target string
	switch ev.label {
	case "drop-namespace":
		target = p.Namespace
	case "drop-type":
		target = p.Namespace + "/" + p.Type
	default:
		target = model.Ref{Namespace: p.Namespace, Type: p.Type, Key: p.Key}.String()
	}
	label := ev.label
	if p.Restored {
		label += " (restored)"
	}
	return fmt.Sprintf("%s  %-16s %s", ui.RenderMuted(now.Format("15:04:05")), label, ui.RenderAccent(target)), true
}

func init() {
	watchCmd.Flags().String("namespace", "", "only show events for this namespace")
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/windowbus/internal/globalbus"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/monitor"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen [event...]",
	Short: "Print events from a running node as JSON lines",
	Long: `Connect to a running node and print every event it relays, one JSON
object per line. Name events to print only those.

Examples:
  windowbus listen
  windowbus listen cart.updated theme.changed | jq .payload`,
	RunE: runListen,
}

var (
	listenURL   string
	listenCount int
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVarP(&listenURL, "url", "u", "", "Node websocket URL (default: from websocket.listen)")
	listenCmd.Flags().IntVarP(&listenCount, "count", "n", 0, "Exit after this many events (0 for no limit)")
}

// listenLine is one line of listen output.
type listenLine struct {
	Event   string    `json:"event"`
	Payload string    `json:"payload"`
	Time    time.Time `json:"time"`
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url, err := nodeURL(cfg, listenURL)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logger := logging.New(os.Stderr, logging.LevelWarn)
	bus := globalbus.New(globalbus.WithLogger(logger))
	feed := monitor.NewFeed(bus, args...)
	defer feed.Close()

	conn, err := joinNode(ctx, url, bus, logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)

	seen := 0
	for {
		select {
		case e, ok := <-feed.Events():
			if !ok {
				return nil
			}
			if err := enc.Encode(listenLine{Event: e.Name, Payload: e.Payload, Time: e.Time}); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
			seen++
			if listenCount > 0 && seen >= listenCount {
				return nil
			}
		case <-conn.Done():
			return fmt.Errorf("connection to %s closed", url)
		case <-ctx.Done():
			return nil
		}
	}
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/globalbus"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/transport/websocket"
	"github.com/spf13/cobra"
)

// dialTimeout bounds connecting to a node from the client commands.
const dialTimeout = 10 * time.Second

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <event> [payload]",
	Short: "Dispatch an event to a running node",
	Long: `Dispatch one event through a running node.

The payload is sent as-is; pass JSON if listeners expect JSON. Use "-" to
read the payload from stdin. Without a payload the event carries "".

Examples:
  windowbus dispatch cart.updated '{"count":3}'
  echo '{"theme":"dark"}' | windowbus dispatch theme.changed -
  windowbus dispatch --url ws://10.0.0.5:7420/ws session.expired user-42`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDispatch,
}

var dispatchURL string

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().StringVarP(&dispatchURL, "url", "u", "", "Node websocket URL (default: from websocket.listen)")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	eventName := args[0]
	payload := ""
	if len(args) == 2 {
		payload = args[1]
	}
	if payload == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		payload = string(data)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url, err := nodeURL(cfg, dispatchURL)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, logging.LevelWarn)
	bus := globalbus.New(globalbus.WithLogger(logger))
	conn, err := joinNode(cmd.Context(), url, bus, logger)
	if err != nil {
		return err
	}

	bus.Dispatch(eventName, payload)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Dispatched %s to %s\n", eventName, url)
	return nil
}

// joinNode dials url and connects bus to the resulting connection.
func joinNode(ctx context.Context, url string, bus *globalbus.Bus, logger *logging.Logger) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := websocket.Dial(dialCtx, url, logger)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			err = errors.Join(errors.ErrTimeout, err)
		}
		return nil, errors.Wrap(err, "failed to connect to node")
	}

	if err := bus.Connect(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

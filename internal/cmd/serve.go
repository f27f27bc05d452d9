package cmd

import (
	"fmt"

	"github.com/Iron-Ham/windowbus/internal/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a windowbus node",
	Long: `Run a windowbus node in the foreground.

The node owns one global bus and joins it to every configured transport:
  - a websocket listener (websocket.listen) serving /ws, /healthz and /stats
  - outbound websocket peers (websocket.peers), re-dialed when lost
  - mailbox peers sharing a directory (mailbox.dir, mailbox.name, mailbox.peers),
    reopened when a peer shuts down
  - a Redis pub/sub channel (redis.url, redis.channel)

Stop the node with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("node-id", "", "Node id (default: generated)")
	serveCmd.Flags().String("listen", "", "Websocket listen address (host:port)")
	serveCmd.Flags().StringSlice("peer", nil, "Websocket peer URL to keep connected (repeatable)")
	serveCmd.Flags().String("redis", "", "Redis URL to relay through")

	_ = viper.BindPFlag("node.id", serveCmd.Flags().Lookup("node-id"))
	_ = viper.BindPFlag("websocket.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("websocket.peers", serveCmd.Flags().Lookup("peer"))
	_ = viper.BindPFlag("redis.url", serveCmd.Flags().Lookup("redis"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	n := node.New(cfg, logger)

	go func() {
		select {
		case <-n.Ready():
			if addr := n.Addr(); addr != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Node %s listening on ws://%s/ws\n", n.ID(), addr)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Node %s running\n", n.ID())
			}
		case <-ctx.Done():
		}
	}()

	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("node stopped: %w", err)
	}
	return nil
}

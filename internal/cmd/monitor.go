package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/windowbus/internal/globalbus"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/monitor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [event...]",
	Short: "Watch events from a running node in a live view",
	Long: `Open a full-screen view of the events relayed by a running node.

Keys: q quit, c clear, f toggle follow, arrows/PgUp/PgDn scroll.`,
	RunE: runMonitor,
}

var monitorURL string

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVarP(&monitorURL, "url", "u", "", "Node websocket URL (default: from websocket.listen)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url, err := nodeURL(cfg, monitorURL)
	if err != nil {
		return err
	}

	// Log output would corrupt the alternate screen.
	logger := logging.New(io.Discard, logging.LevelError)
	bus := globalbus.New(globalbus.WithLogger(logger))
	feed := monitor.NewFeed(bus, args...)
	defer feed.Close()

	conn, err := joinNode(cmd.Context(), url, bus, logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	model := monitor.NewModel(feed, "windowbus "+url, cfg.Monitor.MaxEvents)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	go func() {
		<-conn.Done()
		feed.Close()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

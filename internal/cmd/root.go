package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Iron-Ham/windowbus/internal/config"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "windowbus",
	Short: "Global event bus shared between windows",
	Long: `Windowbus relays named events between independent windows and
processes. Every participant owns a global bus; buses are joined through
messengers (websocket connections, shared mailbox directories or a Redis
channel) so that an event dispatched anywhere reaches every listener.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/windowbus/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/windowbus")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., WINDOWBUS_WEBSOCKET_LISTEN for websocket.listen
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig reads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger opens the logger described by cfg.Logging.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(
		cfg.Logging.ResolveDir(config.ConfigDir()),
		cfg.Logging.Level,
		logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// nodeURL returns override, or the websocket endpoint of the locally
// configured listener.
func nodeURL(cfg *config.Config, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if cfg.WebSocket.Listen == "" {
		return "", fmt.Errorf("no node url given and websocket.listen is empty")
	}
	return "ws://" + cfg.WebSocket.Listen + "/ws", nil
}

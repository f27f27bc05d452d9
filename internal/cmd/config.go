package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Iron-Ham/windowbus/internal/config"
	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify windowbus configuration",
	Long: `View or modify windowbus configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  windowbus config set websocket.listen 0.0.0.0:7420
  windowbus config set websocket.peers ws://10.0.0.5:7420/ws,ws://10.0.0.6:7420/ws
  windowbus config set mailbox.name editor

List values are comma or space separated. Run 'windowbus config set --help'
for every key; values are validated before the file is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/windowbus/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

// Value kinds accepted by config set
const (
	kindString = "string"
	kindInt    = "int"
	kindList   = "list"
)

// settableKeys maps every key config set accepts to its value kind.
var settableKeys = map[string]string{
	"node.id":                         kindString,
	"logging.level":                   kindString,
	"logging.dir":                     kindString,
	"logging.max_size_mb":             kindInt,
	"logging.max_backups":             kindInt,
	"websocket.listen":                kindString,
	"websocket.peers":                 kindList,
	"websocket.reconnect_interval_ms": kindInt,
	"mailbox.dir":                     kindString,
	"mailbox.name":                    kindString,
	"mailbox.peers":                   kindList,
	"mailbox.poll_interval_ms":        kindInt,
	"redis.url":                       kindString,
	"redis.channel":                   kindString,
	"monitor.max_events":              kindInt,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("\n\nValid keys:\n")
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-32s %s\n", k, settableKeys[k]))
	}
	configSetCmd.Long += strings.TrimRight(sb.String(), "\n")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// parseSetting converts a command-line value to the kind a key expects.
func parseSetting(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown configuration key %s\nRun 'windowbus config set --help' to see valid keys", errors.ErrInvalidInput, key)
	}

	switch kind {
	case kindInt:
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an integer, got %q", errors.ErrInvalidInput, key, value)
		}
		return n, nil
	case kindList:
		list, err := cast.ToStringSliceE(strings.ReplaceAll(value, ",", " "))
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return list, nil
	default:
		return cast.ToStringE(value)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)

	return nil
}

// configHeader opens the file written by config init.
const configHeader = `# windowbus configuration
#
# node.id           name on shared channels (empty: generated at startup)
# websocket.listen  address serving /ws, /healthz and /stats (empty: disabled)
# websocket.peers   ws:// URLs this node dials and keeps connected
# mailbox.*         file-based relaying between processes sharing mailbox.dir
# redis.url         redis:// URL or host:port (empty: disabled)
#
# Every key can be overridden with WINDOWBUS_<SECTION>_<KEY>,
# e.g. WINDOWBUS_WEBSOCKET_LISTEN.

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'windowbus config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to encode default configuration: %w", err)
	}

	if err := os.WriteFile(configFile, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize windowbus.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/windowbus/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_WEBSOCKET_LISTEN)\n", config.EnvPrefix, config.EnvPrefix)

	return nil
}

package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "websocket.listen")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// nameRegex validates node ids and inbox names.
// Names start with alphanumeric and can contain alphanumeric, dot, hyphen, underscore
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateNode()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateWebSocket()...)
	errors = append(errors, c.validateMailbox()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateMonitor()...)

	return errors
}

// validateNode validates the NodeConfig
func (c *Config) validateNode() []ValidationError {
	var errors []ValidationError

	if c.Node.ID != "" && !nameRegex.MatchString(c.Node.ID) {
		errors = append(errors, ValidationError{
			Field:   "node.id",
			Value:   c.Node.ID,
			Message: "must start with a letter or digit and contain only letters, digits, '.', '-' or '_'",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateWebSocket validates the WebSocketConfig
func (c *Config) validateWebSocket() []ValidationError {
	var errors []ValidationError

	if c.WebSocket.Listen != "" {
		if _, port, err := net.SplitHostPort(c.WebSocket.Listen); err != nil || port == "" {
			errors = append(errors, ValidationError{
				Field:   "websocket.listen",
				Value:   c.WebSocket.Listen,
				Message: "must be a host:port address",
			})
		}
	}

	seen := make(map[string]bool, len(c.WebSocket.Peers))
	for i, peer := range c.WebSocket.Peers {
		field := fmt.Sprintf("websocket.peers[%d]", i)
		u, err := url.Parse(peer)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   peer,
				Message: "must be a ws:// or wss:// URL",
			})
			continue
		}
		if seen[peer] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   peer,
				Message: "duplicate peer",
			})
		}
		seen[peer] = true
	}

	// Re-dialing faster than this just burns CPU against a dead peer
	const minReconnectMs = 100
	if c.WebSocket.ReconnectIntervalMs < minReconnectMs {
		errors = append(errors, ValidationError{
			Field:   "websocket.reconnect_interval_ms",
			Value:   c.WebSocket.ReconnectIntervalMs,
			Message: fmt.Sprintf("must be at least %d", minReconnectMs),
		})
	}

	return errors
}

// validateMailbox validates the MailboxConfig
func (c *Config) validateMailbox() []ValidationError {
	var errors []ValidationError
	mb := c.Mailbox

	if mb.PollIntervalMs < 10 {
		errors = append(errors, ValidationError{
			Field:   "mailbox.poll_interval_ms",
			Value:   mb.PollIntervalMs,
			Message: "must be at least 10",
		})
	}

	if !mb.Enabled() {
		return errors
	}

	if mb.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "mailbox.dir",
			Value:   mb.Dir,
			Message: "is required when mailbox peers are configured",
		})
	}
	if !nameRegex.MatchString(mb.Name) {
		errors = append(errors, ValidationError{
			Field:   "mailbox.name",
			Value:   mb.Name,
			Message: "is required when mailbox peers are configured and must be a simple name",
		})
	}

	seen := make(map[string]bool, len(mb.Peers))
	for i, peer := range mb.Peers {
		field := fmt.Sprintf("mailbox.peers[%d]", i)
		switch {
		case !nameRegex.MatchString(peer):
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   peer,
				Message: "must be a simple name",
			})
		case peer == mb.Name:
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   peer,
				Message: "must differ from mailbox.name",
			})
		case seen[peer]:
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   peer,
				Message: "duplicate peer",
			})
		}
		seen[peer] = true
	}

	return errors
}

// validateRedis validates the RedisConfig
func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if c.Redis.URL == "" {
		return errors
	}

	if strings.Contains(c.Redis.URL, "://") {
		u, err := url.Parse(c.Redis.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, ValidationError{
				Field:   "redis.url",
				Value:   c.Redis.URL,
				Message: "must be a redis:// URL or host:port",
			})
		}
	} else if _, _, err := net.SplitHostPort(c.Redis.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "redis.url",
			Value:   c.Redis.URL,
			Message: "must be a redis:// URL or host:port",
		})
	}

	if strings.TrimSpace(c.Redis.Channel) == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.channel",
			Value:   c.Redis.Channel,
			Message: "is required when redis.url is set",
		})
	}

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	const maxEvents = 100000
	if c.Monitor.MaxEvents <= 0 || c.Monitor.MaxEvents > maxEvents {
		errors = append(errors, ValidationError{
			Field:   "monitor.max_events",
			Value:   c.Monitor.MaxEvents,
			Message: fmt.Sprintf("must be between 1 and %d", maxEvents),
		})
	}

	return errors
}

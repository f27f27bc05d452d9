package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:      "bad node id",
			modify:    func(c *Config) { c.Node.ID = "-bad id" },
			wantField: "node.id",
		},
		{
			name:      "unknown log level",
			modify:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "zero log size",
			modify:    func(c *Config) { c.Logging.MaxSizeMB = 0 },
			wantField: "logging.max_size_mb",
		},
		{
			name:      "huge log size",
			modify:    func(c *Config) { c.Logging.MaxSizeMB = 5000 },
			wantField: "logging.max_size_mb",
		},
		{
			name:      "negative backups",
			modify:    func(c *Config) { c.Logging.MaxBackups = -1 },
			wantField: "logging.max_backups",
		},
		{
			name:      "listen without port",
			modify:    func(c *Config) { c.WebSocket.Listen = "localhost" },
			wantField: "websocket.listen",
		},
		{
			name:      "http peer",
			modify:    func(c *Config) { c.WebSocket.Peers = []string{"http://localhost:7420/ws"} },
			wantField: "websocket.peers[0]",
		},
		{
			name: "duplicate peer",
			modify: func(c *Config) {
				c.WebSocket.Peers = []string{"ws://a:1/ws", "ws://a:1/ws"}
			},
			wantField: "websocket.peers[1]",
		},
		{
			name:      "reconnect too fast",
			modify:    func(c *Config) { c.WebSocket.ReconnectIntervalMs = 5 },
			wantField: "websocket.reconnect_interval_ms",
		},
		{
			name:      "mailbox peers without name",
			modify:    func(c *Config) { c.Mailbox.Peers = []string{"preview"} },
			wantField: "mailbox.name",
		},
		{
			name: "mailbox peer equals name",
			modify: func(c *Config) {
				c.Mailbox.Name = "editor"
				c.Mailbox.Peers = []string{"editor"}
			},
			wantField: "mailbox.peers[0]",
		},
		{
			name: "mailbox peer with slash",
			modify: func(c *Config) {
				c.Mailbox.Name = "editor"
				c.Mailbox.Peers = []string{"../escape"}
			},
			wantField: "mailbox.peers[0]",
		},
		{
			name: "mailbox without dir",
			modify: func(c *Config) {
				c.Mailbox.Name = "editor"
				c.Mailbox.Peers = []string{"preview"}
				c.Mailbox.Dir = ""
			},
			wantField: "mailbox.dir",
		},
		{
			name:      "mailbox poll too fast",
			modify:    func(c *Config) { c.Mailbox.PollIntervalMs = 1 },
			wantField: "mailbox.poll_interval_ms",
		},
		{
			name:      "redis wrong scheme",
			modify:    func(c *Config) { c.Redis.URL = "http://cache:6379" },
			wantField: "redis.url",
		},
		{
			name:      "redis bare host",
			modify:    func(c *Config) { c.Redis.URL = "cache" },
			wantField: "redis.url",
		},
		{
			name: "redis without channel",
			modify: func(c *Config) {
				c.Redis.URL = "localhost:6379"
				c.Redis.Channel = " "
			},
			wantField: "redis.channel",
		},
		{
			name:      "monitor max events",
			modify:    func(c *Config) { c.Monitor.MaxEvents = 0 },
			wantField: "monitor.max_events",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatalf("Validate() returned no errors, want one for %s", tt.wantField)
			}
			found := false
			for _, err := range errs {
				if err.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() errors = %v, want field %s", errs, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_ValidOptionalTransports(t *testing.T) {
	cfg := Default()
	cfg.Node.ID = "editor-1"
	cfg.WebSocket.Listen = ""
	cfg.WebSocket.Peers = []string{"ws://localhost:7420/ws", "wss://bus.example.com/ws"}
	cfg.Mailbox.Name = "editor"
	cfg.Mailbox.Peers = []string{"preview", "inspector"}
	cfg.Redis.URL = "redis://localhost:6379/0"

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

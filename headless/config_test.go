package headless

import (
	"testing"
	"time"

	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/resilience"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.PageURL != DefaultPageURL {
		t.Errorf("PageURL = %q", cfg.PageURL)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectDelay != 30*time.Second {
		t.Errorf("MaxReconnectDelay = %v", cfg.MaxReconnectDelay)
	}
	if cfg.LoadAttempts != resilience.Unlimited {
		t.Errorf("LoadAttempts = %d", cfg.LoadAttempts)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.MaxReloads != 0 || cfg.PushDisabled || cfg.StartupMessage != nil {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"not a url", func(c *Config) { c.PageURL = "localhost:3000" }},
		{"not http", func(c *Config) { c.PageURL = "ftp://example.com/" }},
		{"negative reloads", func(c *Config) { c.MaxReloads = -1 }},
		{"bad attempts", func(c *Config) { c.LoadAttempts = -2 }},
		{"max below delay", func(c *Config) { c.ReconnectDelay = time.Minute; c.MaxReconnectDelay = time.Second }},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestConfig_NotifierOptions(t *testing.T) {
	var cfg Config
	if len(cfg.NotifierOptions()) != 0 {
		t.Error("nil startup message keeps notifier defaults")
	}

	empty := ""
	cfg.StartupMessage = &empty
	if len(cfg.NotifierOptions()) != 1 {
		t.Errorf("expected one option, got %d", len(cfg.NotifierOptions()))
	}
}

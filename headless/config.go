package headless

import (
	"time"

	"github.com/kbukum/devreload/reload"
	"github.com/kbukum/devreload/resilience"
	"github.com/kbukum/devreload/security"
	"github.com/kbukum/devreload/validation"
)

// Default values.
const (
	DefaultPageURL           = "http://127.0.0.1:3000/"
	DefaultReconnectDelay    = 3 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
)

// Config configures the headless browser.
type Config struct {
	// PageURL is the page to load. Push channels open on the same origin.
	PageURL string `mapstructure:"page_url" validate:"required,http_url"`
	// PushDisabled simulates a platform without server-sent events.
	PushDisabled bool `mapstructure:"push_disabled"`
	// StartupMessage replaces the console message logged once the channel is
	// open. Nil keeps the default; an empty string disables it.
	StartupMessage *string `mapstructure:"startup_message"`
	// ReconnectDelay is the push channel reconnect delay used until the
	// server sends a retry field.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" validate:"gte=0"`
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay" validate:"gtefield=ReconnectDelay"`
	// LoadAttempts bounds page load attempts. -1 retries until stopped.
	LoadAttempts int `mapstructure:"load_attempts" validate:"gte=-1"`
	// RequestTimeout bounds each page request.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	// MaxReloads stops the browser after that many reloads. 0 means never.
	MaxReloads int `mapstructure:"max_reloads" validate:"gte=0"`
	// TLS configures verification of https dev servers.
	TLS security.TLSConfig `mapstructure:"tls"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.PageURL == "" {
		c.PageURL = DefaultPageURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.LoadAttempts == 0 {
		c.LoadAttempts = resilience.Unlimited
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// NotifierOptions returns the notifier options this configuration implies.
func (c *Config) NotifierOptions() []reload.Option {
	if c.StartupMessage == nil {
		return nil
	}
	return []reload.Option{reload.WithStartupMessage(*c.StartupMessage)}
}

// backoff spaces page load retries and push channel reconnects.
func (c *Config) backoff(jitter float64) resilience.Backoff {
	return resilience.Backoff{
		Initial: c.ReconnectDelay,
		Max:     c.MaxReconnectDelay,
		Factor:  2,
		Jitter:  jitter,
	}
}

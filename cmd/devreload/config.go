package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kbukum/devreload/config"
	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/headless"
	"github.com/kbukum/devreload/observability"
	"github.com/kbukum/devreload/version"
)

const serviceName = "devreload"

// Config is the devreload CLI configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Headless             headless.Config      `yaml:"headless" mapstructure:"headless"`
	Telemetry            observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// ApplyDefaults fills unset fields of every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	c.ServiceConfig.ApplyDefaults()
	c.Headless.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Headless.Validate(); err != nil {
		return fmt.Errorf("headless: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// cliOptions holds flags that are not config keys.
type cliOptions struct {
	configFile  string
	envFile     string
	showVersion bool
}

// flagKeys maps config flags to their config keys.
var flagKeys = map[string]string{
	"page-url":        "headless.page_url",
	"no-push":         "headless.push_disabled",
	"startup-message": "headless.startup_message",
	"max-reloads":     "headless.max_reloads",
	"ca-file":         "headless.tls.ca_file",
	"insecure":        "headless.tls.skip_verify",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
}

func newFlagSet() (*pflag.FlagSet, *cliOptions) {
	opts := &cliOptions{}
	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVarP(&opts.configFile, "config", "c", "", "config file (default: search ./config.yml and cmd/devreload/config.yml)")
	fs.StringVar(&opts.envFile, "env-file", "", ".env file to load")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	fs.StringP("page-url", "u", headless.DefaultPageURL, "page served by the dev server")
	fs.Bool("no-push", false, "run as if the platform had no server-sent events")
	fs.String("startup-message", "", "console message once listening (empty disables)")
	fs.Int("max-reloads", 0, "exit after this many reloads (0 runs until interrupted)")
	fs.String("ca-file", "", "PEM CA bundle trusted for https dev servers")
	fs.Bool("insecure", false, "skip certificate verification for https dev servers")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "console", "log format: console, json")
	return fs, opts
}

// loadConfig reads files, environment and changed flags into a Config.
func loadConfig(fs *pflag.FlagSet, opts *cliOptions) (*Config, error) {
	loaderOpts := []config.LoaderOption{config.WithFlags(fs, flagKeys)}
	if opts.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(opts.configFile))
	}
	if opts.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(opts.envFile))
	}

	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg, loaderOpts...); err != nil {
		return nil, errors.Validation("loading config").WithCause(err)
	}
	return &cfg, nil
}

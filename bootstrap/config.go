package bootstrap

import (
	"github.com/kbukum/devreload/config"
)

// Config is the constraint for application configuration types.
// Any struct that embeds config.ServiceConfig satisfies it via promoted methods.
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Headless headless.Config `yaml:"headless" mapstructure:"headless"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}

// Package config loads service configuration.
//
// LoadConfig uses Viper to read a YAML file, then overlays environment
// variables (including those from a .env file loaded with godotenv), then
// command-line flags that were set explicitly. Files are searched for in
// the usual places, for example ./cmd/<service>/config.yml and .env.
//
// # Usage
//
//	var cfg Config
//	err := config.LoadConfig("devreload", &cfg,
//	    config.WithConfigFile(path),
//	    config.WithFlags(flags, map[string]string{"page-url": "headless.page_url"}),
//	)
//
// An environment variable such as HEADLESS_PAGE_URL is bound to every key
// shape it could mean, so it sets headless.page_url.
package config

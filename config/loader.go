package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // explicit config file path
	EnvFile    string // explicit .env file path

	// Flags maps flag names in FlagSet to config keys.
	FlagSet *pflag.FlagSet
	Flags   map[string]string
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithFlags overlays flags from fs that were set on the command line.
// keys maps each flag name to the config key it sets. Flags win over
// environment variables and files.
func WithFlags(fs *pflag.FlagSet, keys map[string]string) LoaderOption {
	return func(lc *LoaderConfig) {
		lc.FlagSet = fs
		lc.Flags = keys
	}
}

// LoadConfig loads configuration for a service into cfg.
//
// Layers, lowest first: YAML file, process environment, .env file,
// changed flags. A missing or unreadable file is a warning, not an error.
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: &RealFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			warnf("failed to load config file %s: %v", files.ConfigFile, err)
		}
	}

	v.AutomaticEnv()
	bindEnv(v)

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			warnf("failed to load .env file %s: %v", files.EnvFile, err)
		} else {
			// godotenv only adds to the process environment.
			bindEnv(v)
		}
	}

	bindFlags(v, lc.FlagSet, lc.Flags)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// Config loads before the logger exists.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[config] warning: "+format+"\n", args...)
}

// bindFlags sets each changed flag on its config key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	if fs == nil {
		return
	}
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v.Set(key, f.Value.String())
	}
}

// bindEnv sets every environment variable under each config key it could
// name, so HEADLESS_PAGE_URL reaches headless.page_url.
func bindEnv(v *viper.Viper) {
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		for _, variant := range generateEnvKeyVariants(key) {
			v.Set(variant, value)
		}
	}
}

// generateEnvKeyVariants returns the flat key, the fully dotted key and
// every split into a dotted section path and an underscored leaf.
//
//	HEADLESS_PAGE_URL -> headless_page_url, headless.page.url, headless.page_url
func generateEnvKeyVariants(envKey string) []string {
	lowerKey := strings.ToLower(envKey)
	parts := strings.Split(lowerKey, "_")
	if len(parts) <= 1 {
		return []string{lowerKey}
	}

	variants := []string{lowerKey, strings.Join(parts, ".")}
	for i := 1; i < len(parts); i++ {
		variants = append(variants, strings.Join(parts[:i], ".")+"."+strings.Join(parts[i:], "_"))
	}
	return removeDuplicates(variants)
}

// removeDuplicates removes duplicate strings, keeping the first occurrence.
func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

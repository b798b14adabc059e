package security

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/devreload/errors"
)

// TLSConfig holds TLS client settings.
type TLSConfig struct {
	// CAFile is a PEM bundle trusted instead of the system roots.
	// A leading "~/" expands to the home directory.
	CAFile string `yaml:"ca_file" mapstructure:"ca_file"`

	// SkipVerify disables server certificate verification.
	SkipVerify bool `yaml:"skip_verify" mapstructure:"skip_verify"`

	// ServerName overrides the server name used for certificate verification.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`
}

// IsEnabled returns true if any TLS setting is configured.
func (c *TLSConfig) IsEnabled() bool {
	if c == nil {
		return false
	}
	return c.SkipVerify || c.CAFile != "" || c.ServerName != ""
}

// Build creates a *tls.Config, or nil when nothing is configured.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.IsEnabled() {
		return nil, nil
	}

	cfg := &tls.Config{
		InsecureSkipVerify: c.SkipVerify,
		ServerName:         c.ServerName,
		MinVersion:         tls.VersionTLS12,
	}

	if c.CAFile != "" {
		pool, err := loadCA(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// Transport returns an HTTP transport using the settings, or
// http.DefaultTransport when nothing is configured.
func (c *TLSConfig) Transport() (http.RoundTripper, error) {
	cfg, err := c.Build()
	if err != nil || cfg == nil {
		return http.DefaultTransport, err
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = cfg
	return t, nil
}

func loadCA(path string) (*x509.CertPool, error) {
	path = expandHome(path)
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidInput("ca_file", "cannot read "+path).WithCause(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.InvalidInput("ca_file", "no PEM certificates in "+path)
	}
	return pool, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

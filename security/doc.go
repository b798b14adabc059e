// Package security builds TLS settings for talking to dev servers served
// over https, typically with a locally trusted CA such as mkcert's.
//
//	cfg := security.TLSConfig{CAFile: "~/.local/share/mkcert/rootCA.pem"}
//	rt, err := cfg.Transport()
package security

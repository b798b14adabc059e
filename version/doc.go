// Package version holds build information for devreload binaries.
//
// Version, commit and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/devreload/version.Version=1.0.0"
//
// Unset values fall back to the module's embedded VCS settings.
package version

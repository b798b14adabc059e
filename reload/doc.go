// Package reload implements the development live-reload notifier.
//
// Once the hosting page has parsed its document the notifier opens a single
// server-push channel to the same-origin path /__dev_reload and reloads the
// page on every message it receives, whatever the payload. On hosts without a
// push primitive it writes a diagnostic and does nothing else.
//
// The page environment is injected through Host, so the same notifier runs in
// a browser (package browser), in the Go-native headless host (package
// headless), or against the fake in reload/reloadtest.
//
// # Usage
//
//	n := reload.New(host, reload.WithStartupMessage(""))
//	n.Install()
package reload

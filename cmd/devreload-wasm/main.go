//go:build js && wasm

// Command devreload-wasm is the in-page reload notifier compiled to
// WebAssembly. Load it from a page served by a dev server that emits
// events on /__dev_reload.
package main

import (
	"github.com/kbukum/devreload/browser"
	"github.com/kbukum/devreload/reload"
)

func main() {
	reload.New(browser.New()).Install()

	// Callbacks need the Go runtime alive for the life of the page.
	select {}
}

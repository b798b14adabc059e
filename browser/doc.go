// Package browser hosts the reload notifier in a real browser page through
// syscall/js. It is built only for js/wasm.
//
//	GOOS=js GOARCH=wasm go build -o dev-reload.wasm ./cmd/devreload-wasm
package browser

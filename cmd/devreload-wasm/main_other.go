//go:build !(js && wasm)

package main

import (
	"github.com/kbukum/devreload/logger"
)

func main() {
	logger.NewDefault("devreload-wasm").Fatal("build with GOOS=js GOARCH=wasm and load the result from a page")
}

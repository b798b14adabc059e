package reload

import (
	_ "embed"
)

//go:embed assets/dev-reload.js
var script []byte

// Script returns the browser script equivalent of the notifier, for dev
// servers that inject JavaScript into served HTML instead of loading WASM.
func Script() []byte {
	out := make([]byte, len(script))
	copy(out, script)
	return out
}

// ScriptTag returns Script wrapped in a script element, ready to append to
// an HTML response.
func ScriptTag() []byte {
	tag := make([]byte, 0, len(script)+len("\n<script>\n\n</script>"))
	tag = append(tag, "\n<script>\n"...)
	tag = append(tag, script...)
	tag = append(tag, "\n</script>"...)
	return tag
}

//go:build js && wasm

package browser

import (
	"fmt"
	"syscall/js"

	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/reload"
)

// Host is the reload.Host of the current browser page.
type Host struct {
	global js.Value
}

var _ reload.Host = (*Host)(nil)

// New returns the host for the page the program runs in.
func New() *Host {
	return &Host{global: js.Global()}
}

// OnReady runs fn on DOMContentLoaded, or right away if the document has
// already been parsed.
func (h *Host) OnReady(fn func()) {
	doc := h.global.Get("document")
	if doc.Get("readyState").String() != "loading" {
		fn()
		return
	}

	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		doc.Call("removeEventListener", "DOMContentLoaded", cb)
		cb.Release()
		fn()
		return nil
	})
	doc.Call("addEventListener", "DOMContentLoaded", cb)
}

// SupportsPush reports whether the page has an EventSource constructor.
func (h *Host) SupportsPush() bool {
	return h.global.Get("EventSource").Type() == js.TypeFunction
}

// OpenPushChannel creates an EventSource for path. The browser reconnects
// it on its own.
func (h *Host) OpenPushChannel(path string) (ch reload.Channel, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch = nil
			err = errors.ConnectionFailed(path).WithCause(fmt.Errorf("%v", r))
		}
	}()
	source := h.global.Get("EventSource").New(path)
	return &channel{source: source}, nil
}

// Reload reloads the page.
func (h *Host) Reload() {
	h.global.Get("location").Call("reload")
}

// LogDiagnostic writes msg to the developer console.
func (h *Host) LogDiagnostic(msg string) {
	h.global.Get("console").Call("log", msg)
}

type channel struct {
	source js.Value
}

// OnMessage sets the EventSource onmessage handler. The callback lives as
// long as the page.
func (c *channel) OnMessage(fn func(reload.Message)) {
	cb := js.FuncOf(func(this js.Value, args []js.Value) any {
		var msg reload.Message
		if len(args) > 0 {
			ev := args[0]
			msg.Type = stringProp(ev, "type")
			msg.Data = stringProp(ev, "data")
			msg.LastEventID = stringProp(ev, "lastEventId")
		}
		fn(msg)
		return nil
	})
	c.source.Set("onmessage", cb)
}

func stringProp(v js.Value, name string) string {
	p := v.Get(name)
	if p.Type() != js.TypeString {
		return ""
	}
	return p.String()
}

// Package reloadtest provides a recording fake of reload.Host.
package reloadtest

import (
	"sync"

	"github.com/kbukum/devreload/reload"
)

// Host is a reload.Host that records every interaction. Callbacks run
// synchronously on the goroutine that triggers them.
type Host struct {
	// Push controls SupportsPush.
	Push bool
	// OpenErr, when set, is returned by OpenPushChannel.
	OpenErr error

	mu          sync.Mutex
	ready       []func()
	fired       bool
	channels    []*Channel
	paths       []string
	reloads     int
	diagnostics []string
}

// New returns a fake host with server push available.
func New() *Host {
	return &Host{Push: true}
}

// OnReady records fn. It runs when Ready is called, or immediately if the
// document is already ready.
func (h *Host) OnReady(fn func()) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		fn()
		return
	}
	h.ready = append(h.ready, fn)
	h.mu.Unlock()
}

// SupportsPush reports the Push field.
func (h *Host) SupportsPush() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Push
}

// OpenPushChannel records path and returns a new Channel.
func (h *Host) OpenPushChannel(path string) (reload.Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paths = append(h.paths, path)
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	ch := &Channel{path: path}
	h.channels = append(h.channels, ch)
	return ch, nil
}

// Reload counts the call.
func (h *Host) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads++
}

// LogDiagnostic records msg.
func (h *Host) LogDiagnostic(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diagnostics = append(h.diagnostics, msg)
}

// Ready marks the document parsed and runs the registered callbacks once.
// Further calls do nothing.
func (h *Host) Ready() {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	fns := h.ready
	h.ready = nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ReadyCallbacks returns how many callbacks are waiting for Ready.
func (h *Host) ReadyCallbacks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ready)
}

// Channels returns the channels opened so far.
func (h *Host) Channels() []*Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Channel(nil), h.channels...)
}

// Paths returns every path passed to OpenPushChannel.
func (h *Host) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

// Reloads returns the number of Reload calls.
func (h *Host) Reloads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

// Diagnostics returns the messages passed to LogDiagnostic.
func (h *Host) Diagnostics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.diagnostics...)
}

// Channel is the fake push channel.
type Channel struct {
	path string

	mu       sync.Mutex
	handlers int
	handler  func(reload.Message)
}

// OnMessage sets the message handler.
func (c *Channel) OnMessage(fn func(reload.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers++
	c.handler = fn
}

// Path returns the path the channel was opened on.
func (c *Channel) Path() string { return c.path }

// Handlers returns how many times OnMessage was called.
func (c *Channel) Handlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// Emit delivers msg to the handler, if any.
func (c *Channel) Emit(msg reload.Message) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

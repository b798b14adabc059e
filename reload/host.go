package reload

// Endpoint is the fixed same-origin path of the reload event stream.
const Endpoint = "/__dev_reload"

// Host is the page environment the notifier runs in.
//
// Hosts deliver OnReady and OnMessage callbacks one at a time, the way a
// page event loop does.
type Host interface {
	// OnReady registers fn to run once the document has been parsed.
	// Sub-resources such as images and styles need not have loaded.
	OnReady(fn func())
	// SupportsPush reports whether the host has a server-push primitive.
	SupportsPush() bool
	// OpenPushChannel opens a long-lived read-only event stream to path.
	// Reconnecting after drops is the host's job.
	OpenPushChannel(path string) (Channel, error)
	// Reload discards the current page and loads it again.
	Reload()
	// LogDiagnostic writes msg to the developer console.
	LogDiagnostic(msg string)
}

// Channel is an open push connection. It lives until the page is torn down.
type Channel interface {
	// OnMessage sets the handler for generic message events.
	OnMessage(fn func(Message))
}

// Message is one inbound push message.
type Message struct {
	Type        string
	Data        string
	LastEventID string
}

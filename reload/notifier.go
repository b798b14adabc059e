package reload

import (
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/logger"
)

// UnsupportedMessage is the diagnostic written when the host has no
// server-push primitive.
const UnsupportedMessage = "Server-Sent Events not supported by your browser."

// DefaultStartupMessage is logged once the push channel is open.
const DefaultStartupMessage = "Serving with dev mode - listening to reload SSEs..."

// State describes where the notifier is in its single run.
type State int

const (
	// StatePending means the notifier is waiting for the page to be ready.
	StatePending State = iota
	// StateListening means the push channel is open.
	StateListening
	// StateUnsupported means the host has no server push.
	StateUnsupported
	// StateFailed means the host could not open the push channel.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateListening:
		return "listening"
	case StateUnsupported:
		return "unsupported"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithStartupMessage sets the console message logged after the channel
// opens. An empty message disables it.
func WithStartupMessage(msg string) Option {
	return func(n *Notifier) { n.startupMessage = msg }
}

// WithLogger sets the Go-side logger. Diagnostics meant for the developer
// console always go through Host.LogDiagnostic.
func WithLogger(l *logger.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.log = l.WithComponent("reload")
		}
	}
}

// WithMeterProvider sets the meter provider for the notifier counters.
// The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(n *Notifier) { n.meterProvider = mp }
}

// Notifier reloads the page whenever the dev server pushes a message.
// One Notifier serves one page load.
type Notifier struct {
	host           Host
	startupMessage string
	log            *logger.Logger
	meterProvider  metric.MeterProvider
	metrics        *metrics

	installOnce sync.Once
	startOnce   sync.Once

	mu      sync.Mutex
	state   State
	err     *errors.AppError
	channel Channel
}

// New creates a notifier bound to host. Call Install to arm it.
func New(host Host, opts ...Option) *Notifier {
	n := &Notifier{
		host:           host,
		startupMessage: DefaultStartupMessage,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.metrics = newMetrics(n.meterProvider)
	return n
}

// Install registers the page-ready callback with the host. Calling it again
// does nothing.
func (n *Notifier) Install() {
	n.installOnce.Do(func() {
		n.host.OnReady(n.start)
	})
}

// State returns the current notifier state.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Err returns the error behind StateUnsupported or StateFailed, or nil.
func (n *Notifier) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err == nil {
		return nil
	}
	return n.err
}

func (n *Notifier) start() {
	n.startOnce.Do(n.connect)
}

func (n *Notifier) connect() {
	if !n.host.SupportsPush() {
		n.host.LogDiagnostic(UnsupportedMessage)
		n.metrics.add(n.metrics.unsupported)
		n.log.Warn("server push unavailable", logger.Fields(logger.FieldStatus, StateUnsupported.String()))
		n.setState(StateUnsupported, errors.CapabilityUnavailable("server-sent events"))
		return
	}

	ch, err := n.host.OpenPushChannel(Endpoint)
	if err != nil {
		appErr := errors.ConnectionFailed(Endpoint).WithCause(err)
		n.host.LogDiagnostic("Failed to open " + Endpoint + ": " + err.Error())
		n.log.Error("open push channel", logger.ErrorFields("open_channel", err))
		n.setState(StateFailed, appErr)
		return
	}

	n.mu.Lock()
	n.channel = ch
	n.mu.Unlock()

	ch.OnMessage(n.handleMessage)
	n.metrics.add(n.metrics.channelsOpened)

	if n.startupMessage != "" {
		n.host.LogDiagnostic(n.startupMessage)
	}
	n.log.Info("listening for reloads", logger.Fields(logger.FieldPath, Endpoint))
	n.setState(StateListening, nil)
}

// handleMessage reloads on every message. The payload is never inspected.
func (n *Notifier) handleMessage(msg Message) {
	n.metrics.add(n.metrics.reloads)
	n.log.Debug("reload requested", logger.Fields(logger.FieldEventID, msg.LastEventID))
	n.host.Reload()
}

func (n *Notifier) setState(s State, err *errors.AppError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = s
	n.err = err
}

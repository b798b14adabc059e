package headless

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/devreload/component"
	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/logger"
	"github.com/kbukum/devreload/observability"
	"github.com/kbukum/devreload/reload"
	"github.com/kbukum/devreload/resilience"
	"github.com/kbukum/devreload/version"
)

const tracerName = "github.com/kbukum/devreload/headless"

var userAgent = version.UserAgent("devreload-headless")

// SpanPageLoad is the span recorded for every page load.
const SpanPageLoad = "devreload.page.load"

// Script runs once per page load, before the document is parsed, the way an
// inline script would.
type Script func(host reload.Host)

// NotifierScript returns a Script that installs a reload notifier.
func NotifierScript(opts ...reload.Option) Script {
	return func(host reload.Host) {
		reload.New(host, opts...).Install()
	}
}

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the browser logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Browser) { b.log = l.WithComponent("headless") }
}

// WithHTTPClient sets the client used for page loads and push channels.
// It must not set a Timeout, which would cut long-lived streams.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Browser) { b.client = c }
}

// WithTracerProvider sets the provider for page load spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Browser) { b.tracer = tp.Tracer(tracerName) }
}

// WithPropagator sets how trace context is written into page requests.
// The default is the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(b *Browser) { b.propagator = p }
}

// WithConsole sets where page diagnostics are printed.
func WithConsole(w io.Writer) Option {
	return func(b *Browser) { b.console = w }
}

// WithPageObserver registers fn to be called with every new page before
// its script runs.
func WithPageObserver(fn func(*Page)) Option {
	return func(b *Browser) { b.observe = fn }
}

// Browser loads a page and loads it again every time the page reloads.
type Browser struct {
	cfg     Config
	pageURL *url.URL
	script  Script
	client  *http.Client
	log     *logger.Logger
	tracer  trace.Tracer
	console io.Writer
	observe func(*Page)

	propagator propagation.TextMapPropagator

	mu      sync.Mutex
	current *Page
	loads   int
	reloads int
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

var _ component.Component = (*Browser)(nil)

// NewBrowser creates a browser for cfg. A nil script installs a notifier
// configured from cfg.
func NewBrowser(cfg Config, script Script, opts ...Option) (*Browser, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(cfg.PageURL)
	if err != nil {
		return nil, errors.InvalidInput("page_url", err.Error())
	}

	transport, err := cfg.TLS.Transport()
	if err != nil {
		return nil, err
	}

	b := &Browser{
		cfg:     cfg,
		pageURL: u,
		client:  &http.Client{Transport: transport},
		log:     logger.Nop(),
		tracer:  observability.Tracer(tracerName),
		done:    make(chan struct{}),

		propagator: observability.Propagator(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if script == nil {
		nopts := append(cfg.NotifierOptions(), reload.WithLogger(b.log))
		script = NotifierScript(nopts...)
	}
	b.script = script
	return b, nil
}

// Run loads the page until ctx is done, a load fails for good, or the
// reload limit is reached.
func (b *Browser) Run(ctx context.Context) error {
	for {
		page := newPage(ctx, b)
		b.setCurrent(page)

		err := b.load(page)
		if err == nil {
			<-page.Done()
		}
		page.close()

		if ctx.Err() != nil {
			return nil
		}
		if !page.Reloaded() {
			b.log.Error("page load failed", logger.ErrorFields("load", err))
			return err
		}

		b.mu.Lock()
		b.reloads++
		reloads := b.reloads
		b.mu.Unlock()
		if b.cfg.MaxReloads > 0 && reloads >= b.cfg.MaxReloads {
			b.log.Info("reload limit reached", logger.Fields("reloads", reloads))
			return nil
		}
	}
}

// load runs the page script, fetches and parses the document and fires the
// ready callbacks.
func (b *Browser) load(page *Page) error {
	ctx, span := b.tracer.Start(page.ctx, SpanPageLoad, trace.WithAttributes(
		attribute.String("page.id", page.id),
		attribute.String("url.full", page.URL()),
	))
	defer span.End()

	start := time.Now()
	b.mu.Lock()
	b.loads++
	b.mu.Unlock()

	if b.observe != nil {
		b.observe(page)
	}
	page.start()
	page.post(func() { b.script(page) })

	doc, err := resilience.Retry(ctx, b.loadRetryConfig(), func() (*Document, error) {
		return b.fetch(ctx, page)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	page.setDocument(doc)
	span.SetAttributes(attribute.Int("page.subresources", len(doc.SubResources)))
	page.markReady()

	page.log.Info("page ready", logger.DurationFields("load", time.Since(start)))
	return nil
}

func (b *Browser) loadRetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: b.cfg.LoadAttempts,
		Backoff:     b.cfg.backoff(0.1),
		OnRetry: func(failure int, err error, delay time.Duration) {
			b.log.Warn("page load failed, retrying", logger.MergeWithError(logger.Fields(
				logger.FieldAttempt, failure,
				logger.FieldDuration, delay.Milliseconds(),
			), err))
		},
	}
}

// fetch requests the document and parses it. Sub-resources are not fetched.
func (b *Browser) fetch(ctx context.Context, page *Page) (*Document, error) {
	reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, page.URL(), nil)
	if err != nil {
		return nil, errors.InvalidInput("page_url", err.Error())
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", userAgent)
	b.propagator.Inject(reqCtx, propagation.HeaderCarrier(req.Header))

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, errors.Timeout("page load").WithCause(err)
		}
		return nil, errors.ConnectionFailed(page.URL()).WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.ServiceUnavailable(page.URL()).WithDetail("status", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Protocol(fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}

	doc, err := parseDocument(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ConnectionFailed(page.URL()).WithCause(err)
	}
	return doc, nil
}

func (b *Browser) setCurrent(p *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = p
}

// CurrentPage returns the page being shown, or nil before the first load.
func (b *Browser) CurrentPage() *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Loads returns the number of page loads started.
func (b *Browser) Loads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

// Reloads returns the number of completed reloads.
func (b *Browser) Reloads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reloads
}

// --- component.Component ---

// Name returns the component name.
func (b *Browser) Name() string { return "headless-browser" }

// Start runs the browser in the background until Stop.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("%s already started", b.Name())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go func() {
		err := b.Run(runCtx)
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		close(b.done)
	}()

	b.log.Info("headless browser started", logger.Fields(logger.FieldURL, b.cfg.PageURL))
	return nil
}

// Stop ends the current page and waits for the browser to finish.
func (b *Browser) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return errors.Timeout("headless browser stop").WithCause(ctx.Err())
	}
}

// Done is closed when a browser started with Start has finished.
func (b *Browser) Done() <-chan struct{} { return b.done }

// Err returns the error that ended a browser started with Start.
func (b *Browser) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Health reports the state of the current page and its push channel.
func (b *Browser) Health(ctx context.Context) component.Health {
	h := component.Health{Name: b.Name()}

	b.mu.Lock()
	started := b.cancel != nil
	page := b.current
	runErr := b.err
	b.mu.Unlock()

	select {
	case <-b.done:
		h.Status = component.StatusUnhealthy
		h.Message = "stopped"
		if runErr != nil {
			h.Message = runErr.Error()
		}
		return h
	default:
	}

	switch {
	case !started:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	case page == nil || !page.Ready():
		h.Status, h.Message = component.StatusDegraded, "loading"
	case b.cfg.PushDisabled:
		h.Status, h.Message = component.StatusDegraded, "server push unavailable"
	default:
		h.Status, h.Message = channelHealth(page.Channels())
	}
	return h
}

func channelHealth(chans []*PushChannel) (component.HealthStatus, string) {
	if len(chans) == 0 {
		return component.StatusDegraded, "no push channel"
	}
	ch := chans[0]
	switch ch.State() {
	case ChannelOpen:
		return component.StatusHealthy, "listening on " + ch.URL()
	case ChannelConnecting:
		return component.StatusDegraded, "connecting to " + ch.URL()
	default:
		msg := "push channel closed"
		if err := ch.Err(); err != nil {
			msg += ": " + err.Error()
		}
		return component.StatusUnhealthy, msg
	}
}

// Describe reports the browser for the startup summary.
func (b *Browser) Describe() component.Description {
	details := b.cfg.PageURL
	if b.cfg.PushDisabled {
		details += " push=off"
	}
	return component.Description{
		Name:    "Headless Browser",
		Type:    "client",
		Details: details,
	}
}

package headless

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/logger"
	"github.com/kbukum/devreload/reload"
)

// Page is one page load. It implements reload.Host.
//
// Callbacks posted to a page run in order on its event loop goroutine.
// The page ends when Reload is called or the browser stops.
type Page struct {
	id      string
	url     *url.URL
	cfg     *Config
	browser *Browser
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queueMu  sync.Mutex
	queue    []func()
	wake     chan struct{}
	loopDone chan struct{}
	started  bool
	streams  sync.WaitGroup

	mu          sync.Mutex
	readyFns    []func()
	ready       bool
	reloaded    bool
	channels    []*PushChannel
	diagnostics []string
	doc         *Document
}

var _ reload.Host = (*Page)(nil)

func newPage(ctx context.Context, b *Browser) *Page {
	id := uuid.NewString()
	pctx, cancel := context.WithCancel(ctx)
	return &Page{
		id:       id,
		url:      b.pageURL,
		cfg:      &b.cfg,
		browser:  b,
		log:      b.log.WithFields(logger.Fields(logger.FieldPageID, id)),
		ctx:      pctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
}

// ID returns the page id.
func (p *Page) ID() string { return p.id }

// URL returns the page URL.
func (p *Page) URL() string { return p.url.String() }

// Done is closed when the page has ended.
func (p *Page) Done() <-chan struct{} { return p.ctx.Done() }

// OnReady runs fn on the event loop once the document is parsed. If the
// page is already ready fn is queued right away.
func (p *Page) OnReady(fn func()) {
	p.mu.Lock()
	if !p.ready {
		p.readyFns = append(p.readyFns, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.post(fn)
}

// SupportsPush reports whether server-sent events are available.
func (p *Page) SupportsPush() bool {
	return !p.cfg.PushDisabled
}

// OpenPushChannel opens an event stream to path on the page origin.
func (p *Page) OpenPushChannel(path string) (reload.Channel, error) {
	if p.cfg.PushDisabled {
		return nil, errors.CapabilityUnavailable("server-sent events")
	}
	if err := p.ctx.Err(); err != nil {
		return nil, errors.ConnectionFailed(path).WithCause(err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, errors.InvalidInput("path", err.Error())
	}
	target := p.url.ResolveReference(ref)
	if target.Scheme != p.url.Scheme || target.Host != p.url.Host {
		return nil, errors.InvalidInput("path", "must be on the page origin")
	}

	ch := newPushChannel(p, target.String())
	p.mu.Lock()
	p.channels = append(p.channels, ch)
	p.mu.Unlock()

	p.streams.Add(1)
	go ch.run()
	return ch, nil
}

// Reload ends the page so the browser loads it again. Only the first call
// has an effect.
func (p *Page) Reload() {
	p.mu.Lock()
	if p.reloaded {
		p.mu.Unlock()
		return
	}
	p.reloaded = true
	p.mu.Unlock()

	p.log.Info("reloading page", logger.Fields(logger.FieldURL, p.URL()))
	p.cancel()
}

// LogDiagnostic records msg and prints it to the browser console writer.
func (p *Page) LogDiagnostic(msg string) {
	p.mu.Lock()
	p.diagnostics = append(p.diagnostics, msg)
	p.mu.Unlock()

	p.log.Debug("console", logger.Fields("message", msg))
	if w := p.browser.console; w != nil {
		_, _ = fmt.Fprintln(w, msg)
	}
}

// Ready reports whether the document has been parsed.
func (p *Page) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Reloaded reports whether Reload was called.
func (p *Page) Reloaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloaded
}

// Diagnostics returns the console messages logged so far.
func (p *Page) Diagnostics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.diagnostics...)
}

// Channels returns the push channels opened by the page.
func (p *Page) Channels() []*PushChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*PushChannel(nil), p.channels...)
}

// Document returns the parsed document, or nil before the page is ready.
func (p *Page) Document() *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// start runs the event loop.
func (p *Page) start() {
	p.queueMu.Lock()
	if p.started {
		p.queueMu.Unlock()
		return
	}
	p.started = true
	p.queueMu.Unlock()
	go p.loop()
}

// close ends the page and waits for its goroutines.
func (p *Page) close() {
	p.cancel()
	p.queueMu.Lock()
	started := p.started
	p.queueMu.Unlock()
	if started {
		<-p.loopDone
	}
	p.streams.Wait()
}

// post queues fn on the event loop. It reports false once the page ended.
func (p *Page) post(fn func()) bool {
	if p.ctx.Err() != nil {
		return false
	}
	p.queueMu.Lock()
	p.queue = append(p.queue, fn)
	p.queueMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *Page) next() func() {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	fn := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return fn
}

func (p *Page) loop() {
	defer close(p.loopDone)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
		for fn := p.next(); fn != nil; fn = p.next() {
			if p.ctx.Err() != nil {
				return
			}
			p.invoke(fn)
		}
	}
}

// invoke runs one task. A panicking task is logged like an uncaught
// script error and the loop carries on.
func (p *Page) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("uncaught error in page callback", logger.Fields(logger.FieldError, fmt.Sprint(r)))
		}
	}()
	fn()
}

func (p *Page) setDocument(doc *Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
}

// markReady fires the ready callbacks once.
func (p *Page) markReady() {
	p.mu.Lock()
	if p.ready {
		p.mu.Unlock()
		return
	}
	p.ready = true
	fns := p.readyFns
	p.readyFns = nil
	p.mu.Unlock()

	for _, fn := range fns {
		p.post(fn)
	}
}


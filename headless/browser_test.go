package headless

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/devreload/component"
	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/eventstream/eventstreamtest"
	"github.com/kbukum/devreload/reload"
)

const waitTimeout = 5 * time.Second

func testConfig(pageURL string) Config {
	return Config{
		PageURL:           pageURL,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		RequestTimeout:    2 * time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// runBrowser runs b in the background and returns a stop function that
// cancels it and returns the Run error.
func runBrowser(t *testing.T, b *Browser) (done <-chan error, stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- b.Run(ctx) }()

	var once sync.Once
	var err error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-ch:
			case <-time.After(waitTimeout):
				t.Fatal("browser did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { stop() })
	return ch, stop
}

func newTestBrowser(t *testing.T, cfg Config, script Script, opts ...Option) *Browser {
	t.Helper()
	b, err := NewBrowser(cfg, script, opts...)
	if err != nil {
		t.Fatalf("NewBrowser: %v", err)
	}
	return b
}

func TestBrowser_ReloadsOnMessage(t *testing.T) {
	srv := eventstreamtest.New(eventstreamtest.WithRetry(10 * time.Millisecond))
	defer srv.Close()

	cfg := testConfig(srv.PageURL())
	cfg.MaxReloads = 1
	var console bytes.Buffer
	var consoleMu sync.Mutex
	b := newTestBrowser(t, cfg, nil, WithConsole(&lockedWriter{w: &console, mu: &consoleMu}))

	done, _ := runBrowser(t, b)
	if !srv.WaitForClients(1, waitTimeout) {
		t.Fatal("page never opened the push channel")
	}
	waitFor(t, "startup message", func() bool {
		return contains(b.CurrentPage().Diagnostics(), reload.DefaultStartupMessage)
	})

	srv.SendData("")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("page did not reload")
	}

	if b.Reloads() != 1 {
		t.Errorf("reloads = %d, want 1", b.Reloads())
	}
	if got := srv.Requests(eventstreamtest.StreamPath); got != 1 {
		t.Errorf("stream requests = %d, want 1", got)
	}
	for _, sub := range []string{"/style.css", "/app.js", "/slow.png"} {
		if srv.Requests(sub) != 0 {
			t.Errorf("sub-resource %s was fetched", sub)
		}
	}
	consoleMu.Lock()
	out := console.String()
	consoleMu.Unlock()
	if !strings.Contains(out, reload.DefaultStartupMessage) {
		t.Errorf("console = %q", out)
	}
}

func TestBrowser_LoadsAgainAfterReload(t *testing.T) {
	srv := eventstreamtest.New(eventstreamtest.WithRetry(10 * time.Millisecond))
	defer srv.Close()

	b := newTestBrowser(t, testConfig(srv.PageURL()), nil)
	_, stop := runBrowser(t, b)

	if !srv.WaitForClients(1, waitTimeout) {
		t.Fatal("page never opened the push channel")
	}
	first := b.CurrentPage()
	srv.SendData("changed")

	waitFor(t, "second page", func() bool {
		p := b.CurrentPage()
		return p != first && p.Ready()
	})
	waitFor(t, "second stream", func() bool {
		return srv.Requests(eventstreamtest.StreamPath) >= 2
	})

	if srv.Requests("/") != 2 {
		t.Errorf("page requests = %d, want 2", srv.Requests("/"))
	}
	if b.Loads() != 2 || b.Reloads() != 1 {
		t.Errorf("loads = %d reloads = %d, want 2 and 1", b.Loads(), b.Reloads())
	}
	if !first.Reloaded() {
		t.Error("first page should be marked reloaded")
	}
	if err := stop(); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestBrowser_UnsupportedPlatform(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	cfg := testConfig(srv.PageURL())
	cfg.PushDisabled = true
	b := newTestBrowser(t, cfg, nil)
	_, stop := runBrowser(t, b)

	waitFor(t, "unsupported diagnostic", func() bool {
		p := b.CurrentPage()
		return p != nil && contains(p.Diagnostics(), reload.UnsupportedMessage)
	})

	page := b.CurrentPage()
	if len(page.Channels()) != 0 {
		t.Error("no channel may exist without push support")
	}
	if got := page.Diagnostics(); len(got) != 1 {
		t.Errorf("diagnostics = %q, want only the unsupported message", got)
	}
	time.Sleep(50 * time.Millisecond)
	if srv.Requests(eventstreamtest.StreamPath) != 0 {
		t.Error("stream endpoint was contacted")
	}
	stop()
	if b.Reloads() != 0 {
		t.Errorf("reloads = %d, want 0", b.Reloads())
	}
}

func TestBrowser_NoMessageNoReload(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	b := newTestBrowser(t, testConfig(srv.PageURL()), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !srv.WaitForClients(1, waitTimeout) {
		t.Fatal("page never opened the push channel")
	}
	waitFor(t, "healthy", func() bool {
		return b.Health(context.Background()).Status == component.StatusHealthy
	})

	time.Sleep(100 * time.Millisecond)
	if b.Reloads() != 0 || b.Loads() != 1 {
		t.Errorf("loads = %d reloads = %d, want 1 and 0", b.Loads(), b.Reloads())
	}
	ch := b.CurrentPage().Channels()
	if len(ch) != 1 || ch[0].State() != ChannelOpen {
		t.Fatalf("expected one open channel, got %v", ch)
	}
	if srv.Connections() != 1 {
		t.Errorf("connections = %d, want 1", srv.Connections())
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if b.Err() != nil {
		t.Errorf("Err = %v", b.Err())
	}
	if h := b.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health after stop = %+v", h)
	}
	if ch[0].State() != ChannelClosed {
		t.Errorf("channel state after stop = %s", ch[0].State())
	}
}

func TestBrowser_StartTwice(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	b := newTestBrowser(t, testConfig(srv.PageURL()), nil)
	if h := b.Health(context.Background()); h.Status != component.StatusUnhealthy || h.Message != "not started" {
		t.Errorf("health before start = %+v", h)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop(context.Background())
	if err := b.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

// recordingScript opens a channel directly and records what it receives.
type recordingScript struct {
	mu   sync.Mutex
	msgs []reload.Message
	ch   reload.Channel
	err  error
}

func (r *recordingScript) run(host reload.Host) {
	ch, err := host.OpenPushChannel(reload.Endpoint)
	r.mu.Lock()
	r.ch, r.err = ch, err
	r.mu.Unlock()
	if err != nil {
		return
	}
	ch.OnMessage(func(m reload.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, m)
	})
}

func (r *recordingScript) messages() []reload.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reload.Message(nil), r.msgs...)
}

func TestPushChannel_ReconnectsWithLastEventID(t *testing.T) {
	srv := eventstreamtest.New(eventstreamtest.WithRetry(10 * time.Millisecond))
	defer srv.Close()

	rec := &recordingScript{}
	b := newTestBrowser(t, testConfig(srv.PageURL()), rec.run)
	runBrowser(t, b)

	if !srv.WaitForClients(1, waitTimeout) {
		t.Fatal("channel never connected")
	}
	srv.Send(eventstreamtest.Event{ID: "7", Data: "first"})
	waitFor(t, "first message", func() bool { return len(rec.messages()) == 1 })

	srv.DropClients()
	waitFor(t, "reconnect", func() bool { return len(srv.StreamHeaders()) >= 2 })

	headers := srv.StreamHeaders()
	if got := headers[0].Get("Last-Event-ID"); got != "" {
		t.Errorf("first request Last-Event-ID = %q, want none", got)
	}
	if got := headers[0].Get("Accept"); got != "text/event-stream" {
		t.Errorf("Accept = %q", got)
	}
	if got := headers[0].Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := headers[1].Get("Last-Event-ID"); got != "7" {
		t.Errorf("reconnect Last-Event-ID = %q, want 7", got)
	}

	if !srv.WaitForClients(1, waitTimeout) {
		t.Fatal("channel did not come back")
	}
	waitFor(t, "second message", func() bool {
		srv.SendData("second")
		return len(rec.messages()) >= 2
	})
	msgs := rec.messages()
	if msgs[0].LastEventID != "7" || msgs[1].LastEventID != "7" {
		t.Errorf("last event id should persist: %+v", msgs)
	}
}

func TestPushChannel_OnlyGenericMessagesDelivered(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	rec := &recordingScript{}
	b := newTestBrowser(t, testConfig(srv.PageURL()), rec.run)
	runBrowser(t, b)

	if !srv.WaitForClients(1, waitTimeout) {
		t.Fatal("channel never connected")
	}
	srv.Send(eventstreamtest.Event{Event: "update", Data: "ignored"})
	srv.Send(eventstreamtest.Event{Data: "delivered"})

	waitFor(t, "message", func() bool { return len(rec.messages()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	msgs := rec.messages()
	if len(msgs) != 1 || msgs[0].Data != "delivered" || msgs[0].Type != "message" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestPushChannel_PermanentFailure(t *testing.T) {
	tests := []struct {
		name string
		opt  eventstreamtest.Option
	}{
		{"not found", eventstreamtest.WithStreamStatus(http.StatusNotFound)},
		{"server error", eventstreamtest.WithStreamStatus(http.StatusInternalServerError)},
		{"wrong content type", eventstreamtest.WithStreamContentType("text/plain")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := eventstreamtest.New(tc.opt)
			defer srv.Close()

			b := newTestBrowser(t, testConfig(srv.PageURL()), nil)
			runBrowser(t, b)

			var ch *PushChannel
			waitFor(t, "closed channel", func() bool {
				p := b.CurrentPage()
				if p == nil || len(p.Channels()) == 0 {
					return false
				}
				ch = p.Channels()[0]
				return ch.State() == ChannelClosed
			})

			if !errors.HasCode(ch.Err(), errors.ErrCodeProtocol) {
				t.Errorf("expected PROTOCOL_ERROR, got %v", ch.Err())
			}
			time.Sleep(60 * time.Millisecond)
			if got := srv.Requests(eventstreamtest.StreamPath); got != 1 {
				t.Errorf("stream requests = %d, want 1 (no reconnect)", got)
			}
			if h := b.Health(context.Background()); h.Status != component.StatusUnhealthy {
				t.Errorf("health = %+v, want unhealthy", h)
			}
		})
	}
}

func TestBrowser_DoubleReloadNavigatesOnce(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	cfg := testConfig(srv.PageURL())
	cfg.MaxReloads = 3
	script := func(host reload.Host) {
		host.OnReady(func() {
			host.Reload()
			host.Reload()
		})
	}
	b := newTestBrowser(t, cfg, script)

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Loads() != 3 || b.Reloads() != 3 {
		t.Errorf("loads = %d reloads = %d, want 3 and 3", b.Loads(), b.Reloads())
	}
	if srv.Requests("/") != 3 {
		t.Errorf("page requests = %d, want 3", srv.Requests("/"))
	}
}

func TestBrowser_ReadyFiresOnce(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	var fired atomic.Int32
	script := func(host reload.Host) {
		host.OnReady(func() { fired.Add(1) })
	}
	b := newTestBrowser(t, testConfig(srv.PageURL()), script)
	_, stop := runBrowser(t, b)

	waitFor(t, "ready", func() bool { return fired.Load() == 1 })
	page := b.CurrentPage()
	page.markReady()
	time.Sleep(20 * time.Millisecond)
	stop()

	if fired.Load() != 1 {
		t.Errorf("ready fired %d times, want 1", fired.Load())
	}
	if n := len(page.Document().SubResources); n != 3 {
		t.Errorf("sub-resources = %d, want 3", n)
	}
	for _, sub := range page.Document().SubResources {
		if srv.Requests(sub) != 0 {
			t.Errorf("sub-resource %s was fetched", sub)
		}
	}
}

func TestBrowser_PageLoadRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>up</p>"))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL + "/")
	cfg.LoadAttempts = 5
	cfg.PushDisabled = true
	b := newTestBrowser(t, cfg, nil)
	runBrowser(t, b)

	waitFor(t, "ready page", func() bool {
		p := b.CurrentPage()
		return p != nil && p.Ready()
	})
	if hits.Load() != 3 {
		t.Errorf("page requests = %d, want 3", hits.Load())
	}
}

func TestBrowser_PageLoadFailsForGood(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		attempts int
		wantHits int32
		code     errors.ErrorCode
	}{
		{"client error is not retried", http.StatusNotFound, 5, 1, errors.ErrCodeProtocol},
		{"server error exhausts attempts", http.StatusBadGateway, 2, 2, errors.ErrCodeServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL + "/")
			cfg.LoadAttempts = tc.attempts
			b := newTestBrowser(t, cfg, nil)

			err := b.Run(context.Background())
			if !errors.HasCode(err, tc.code) {
				t.Errorf("Run error = %v, want %s", err, tc.code)
			}
			if hits.Load() != tc.wantHits {
				t.Errorf("requests = %d, want %d", hits.Load(), tc.wantHits)
			}
		})
	}
}

func TestBrowser_PageLoadSpan(t *testing.T) {
	srv := eventstreamtest.New()
	defer srv.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	cfg := testConfig(srv.PageURL())
	cfg.MaxReloads = 1
	script := func(host reload.Host) { host.OnReady(host.Reload) }
	b := newTestBrowser(t, cfg, script, WithTracerProvider(tp))

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != SpanPageLoad {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["page.id"] == "" {
		t.Error("missing page.id")
	}
	if attrs["url.full"] != srv.PageURL() {
		t.Errorf("url.full = %q", attrs["url.full"])
	}
	if attrs["page.subresources"] != "3" {
		t.Errorf("page.subresources = %q", attrs["page.subresources"])
	}
}

func TestBrowser_PageRequestCarriesTraceContext(t *testing.T) {
	var (
		mu      sync.Mutex
		parents []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		parents = append(parents, r.Header.Get("Traceparent"))
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	cfg := testConfig(srv.URL + "/")
	cfg.MaxReloads = 1
	cfg.PushDisabled = true
	script := func(host reload.Host) { host.OnReady(host.Reload) }
	b := newTestBrowser(t, cfg, script,
		WithTracerProvider(tp),
		WithPropagator(propagation.TraceContext{}),
	)

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := sr.Ended()
	if len(spans) == 0 {
		t.Fatal("no page load span")
	}
	traceID := spans[0].SpanContext().TraceID().String()

	mu.Lock()
	defer mu.Unlock()
	if len(parents) == 0 {
		t.Fatal("page was never requested")
	}
	if !strings.Contains(parents[0], traceID) {
		t.Errorf("traceparent = %q, want trace id %s", parents[0], traceID)
	}
}

func TestNewBrowser_InvalidConfig(t *testing.T) {
	_, err := NewBrowser(Config{PageURL: "not a url"}, nil)
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestBrowser_Describe(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/")
	cfg.PushDisabled = true
	b := newTestBrowser(t, cfg, nil)
	d := b.Describe()
	if d.Type != "client" || !strings.Contains(d.Details, "push=off") {
		t.Errorf("Describe = %+v", d)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

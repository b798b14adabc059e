package headless

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/kbukum/devreload/errors"
	"github.com/kbukum/devreload/eventstream"
	"github.com/kbukum/devreload/logger"
	"github.com/kbukum/devreload/reload"
	"github.com/kbukum/devreload/resilience"
)

// ChannelState is the ready state of a push channel.
type ChannelState int

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosed
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PushChannel is an auto-reconnecting event stream bound to a page.
type PushChannel struct {
	page *Page
	url  string
	log  *logger.Logger

	mu          sync.Mutex
	state       ChannelState
	handler     func(reload.Message)
	err         error
	lastEventID string
	retry       time.Duration
	connects    int
}

var _ reload.Channel = (*PushChannel)(nil)

func newPushChannel(p *Page, target string) *PushChannel {
	return &PushChannel{
		page: p,
		url:  target,
		log:  p.log.WithComponent("push").WithFields(logger.Fields(logger.FieldURL, target)),
	}
}

// OnMessage sets the handler for "message" events.
func (c *PushChannel) OnMessage(fn func(reload.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

// URL returns the stream URL.
func (c *PushChannel) URL() string { return c.url }

// State returns the ready state.
func (c *PushChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that closed the channel for good, if any.
func (c *PushChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// LastEventID returns the id sent on the next reconnect.
func (c *PushChannel) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// Connects returns how many connection attempts were made.
func (c *PushChannel) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *PushChannel) run() {
	defer c.page.streams.Done()
	ctx := c.page.ctx

	failures := 0
	for {
		opened, err := c.connect(ctx)
		if ctx.Err() != nil {
			c.close(nil)
			return
		}
		if errors.HasCode(err, errors.ErrCodeProtocol) {
			c.log.Warn("push channel closed", logger.ErrorFields("connect", err))
			c.close(err)
			return
		}

		if opened {
			failures = 0
		}
		failures++
		delay := c.reconnectDelay(failures)
		c.setState(ChannelConnecting)
		c.log.Debug("push channel reconnecting", logger.MergeWithError(logger.Fields(
			logger.FieldAttempt, failures,
			logger.FieldDuration, delay.Milliseconds(),
		), err))

		if resilience.Sleep(ctx, delay) != nil {
			c.close(nil)
			return
		}
	}
}

// reconnectDelay grows from the server retry value, or the configured delay,
// with each consecutive failure.
func (c *PushChannel) reconnectDelay(failure int) time.Duration {
	c.mu.Lock()
	hint := c.retry
	c.mu.Unlock()
	return c.page.cfg.backoff(0).From(hint).Delay(failure)
}

// connect runs one connection until the stream ends. opened reports whether
// the server accepted the stream.
func (c *PushChannel) connect(ctx context.Context) (opened bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false, errors.Protocol("invalid stream request").WithCause(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	c.mu.Lock()
	c.connects++
	lastID := c.lastEventID
	c.mu.Unlock()
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := c.page.browser.client.Do(req)
	if err != nil {
		return false, errors.ConnectionFailed(c.url).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return false, errors.Protocol(fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if mt, _, perr := mime.ParseMediaType(ct); perr != nil || mt != "text/event-stream" {
		resp.Body.Close()
		return false, errors.Protocol(fmt.Sprintf("unexpected content type %q", ct)).
			WithDetail("content_type", ct)
	}

	c.setState(ChannelOpen)
	c.log.Debug("push channel open")

	reader := eventstream.NewReaderWithLastEventID(resp.Body, lastID)
	defer reader.Close()
	for {
		ev, err := reader.Next()
		c.remember(reader)
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return true, errors.ConnectionFailed(c.url).WithCause(err)
		}
		if ev.Event != eventstream.DefaultEventType {
			continue
		}
		c.dispatch(reload.Message{Type: ev.Event, Data: ev.Data, LastEventID: ev.ID})
	}
}

func (c *PushChannel) remember(r eventstream.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEventID = r.LastEventID()
	if d := r.RetryAfter(); d > 0 {
		c.retry = d
	}
}

// dispatch queues msg for the handler on the page event loop.
func (c *PushChannel) dispatch(msg reload.Message) {
	c.page.post(func() {
		c.mu.Lock()
		fn := c.handler
		c.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	})
}

func (c *PushChannel) setState(s ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ChannelClosed {
		c.state = s
	}
}

func (c *PushChannel) close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ChannelClosed
	if err != nil {
		c.err = err
	}
}

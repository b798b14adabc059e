// Package eventstreamtest provides an in-process dev server that serves a
// page and emits reload events on the event-stream endpoint. It is test
// tooling for push-channel clients.
package eventstreamtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/devreload/logger"
)

// StreamPath is the route the server streams events on.
const StreamPath = "/__dev_reload"

// DefaultPage is served at "/" unless WithPage overrides it. It references
// sub-resources so tests can check they are never requested.
const DefaultPage = `<!DOCTYPE html>
<html>
<head>
<title>dev</title>
<link rel="stylesheet" href="/style.css">
<script src="/app.js"></script>
</head>
<body>
<img src="/slow.png">
<p>hello</p>
</body>
</html>
`

// Event is one event to emit. Empty fields are omitted from the wire.
type Event struct {
	ID    string
	Event string
	Data  string
	Retry time.Duration
}

// Encode renders e in text/event-stream framing, terminated by a blank line.
func (e Event) Encode() string {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Event)
	}
	if e.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", e.Retry.Milliseconds())
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

// Option configures a Server.
type Option func(*Server)

// WithPage sets the HTML served at "/".
func WithPage(html string) Option {
	return func(s *Server) { s.page = html }
}

// WithStreamStatus makes the stream route answer with status and no events.
func WithStreamStatus(status int) Option {
	return func(s *Server) { s.streamStatus = status }
}

// WithStreamContentType overrides the stream response content type.
func WithStreamContentType(ct string) Option {
	return func(s *Server) { s.contentType = ct }
}

// WithRetry makes every new stream start with a retry field.
func WithRetry(d time.Duration) Option {
	return func(s *Server) { s.retry = d }
}

// WithTLS serves over https with the httptest certificate.
func WithTLS() Option {
	return func(s *Server) { s.tls = true }
}

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.WithComponent("eventstreamtest") }
}

type client struct {
	id     string
	events chan string
	drop   chan struct{}
}

// Server is a running test dev server.
type Server struct {
	*httptest.Server

	page         string
	streamStatus int
	contentType  string
	retry        time.Duration
	tls          bool
	log          *logger.Logger

	mu            sync.Mutex
	clients       map[string]*client
	requests      map[string]int
	streamHeaders []http.Header
	done          chan struct{}
	closeOnce     sync.Once
}

// New starts a server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		page:         DefaultPage,
		streamStatus: http.StatusOK,
		contentType:  "text/event-stream",
		log:          logger.Nop(),
		clients:      make(map[string]*client),
		requests:     make(map[string]int),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.countRequests)
	engine.GET("/", s.servePage)
	engine.GET(StreamPath, s.serveStream)
	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusOK, "")
	})

	if s.tls {
		s.Server = httptest.NewTLSServer(engine)
	} else {
		s.Server = httptest.NewServer(engine)
	}
	return s
}

// PageURL returns the URL of the page at "/".
func (s *Server) PageURL() string {
	return s.URL + "/"
}

// Close disconnects every stream and shuts the server down.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.Server.Close()
	})
}

// Send emits ev to every connected stream and returns how many received it.
func (s *Server) Send(ev Event) int {
	frame := ev.Encode()
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := 0
	for _, c := range s.clients {
		select {
		case c.events <- frame:
			sent++
		default:
			s.log.Warn("client channel full, dropping event", logger.Fields("client_id", c.id))
		}
	}
	return sent
}

// SendData emits a generic message carrying data.
func (s *Server) SendData(data string) int {
	return s.Send(Event{Data: data})
}

// DropClients ends every open stream. Clients see the connection close.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		close(c.drop)
		delete(s.clients, id)
	}
}

// WaitForClients blocks until at least n streams are connected or the
// timeout passes. It reports whether n was reached.
func (s *Server) WaitForClients(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.Connections() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Connections returns the number of currently connected streams.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Requests returns how many requests path has received.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// StreamHeaders returns the request headers of every stream request in
// arrival order.
func (s *Server) StreamHeaders() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.streamHeaders...)
}

func (s *Server) countRequests(c *gin.Context) {
	s.mu.Lock()
	s.requests[c.Request.URL.Path]++
	if c.Request.URL.Path == StreamPath {
		s.streamHeaders = append(s.streamHeaders, c.Request.Header.Clone())
	}
	s.mu.Unlock()
	c.Next()
}

func (s *Server) servePage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.page))
}

func (s *Server) serveStream(c *gin.Context) {
	if s.streamStatus != http.StatusOK {
		c.Status(s.streamStatus)
		return
	}
	if !strings.HasPrefix(s.contentType, "text/event-stream") {
		c.Data(http.StatusOK, s.contentType, []byte("not a stream\n"))
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", s.contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	cl := &client{
		id:     uuid.NewString(),
		events: make(chan string, 64),
		drop:   make(chan struct{}),
	}

	// The first frame is written before the client becomes visible, so a
	// waiter that sees it connected knows the response headers are out.
	if s.retry > 0 {
		fmt.Fprintf(w, "retry: %d\n\n", s.retry.Milliseconds())
	} else {
		fmt.Fprint(w, ": connected\n\n")
	}
	w.Flush()

	s.mu.Lock()
	s.clients[cl.id] = cl
	s.mu.Unlock()
	s.log.Debug("client connected", logger.Fields("client_id", cl.id))

	defer func() {
		s.mu.Lock()
		delete(s.clients, cl.id)
		s.mu.Unlock()
		s.log.Debug("client disconnected", logger.Fields("client_id", cl.id))
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-cl.drop:
			return
		case frame := <-cl.events:
			fmt.Fprint(w, frame)
			w.Flush()
		}
	}
}

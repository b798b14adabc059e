package eventstream

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultEventType is the type of events that carry no "event:" field.
const DefaultEventType = "message"

// MaxLineSize bounds a single line of the stream.
const MaxLineSize = 1 << 20

const bom = "\uFEFF"

// Event represents a single server-sent event.
type Event struct {
	// Event is the SSE event type (from "event:" line). DefaultEventType when absent.
	Event string
	// Data is the event payload (from "data:" line(s)). Multi-line data is joined with newlines.
	Data string
	// ID is the last event ID in effect when the event was dispatched.
	ID string
}

// Reader reads server-sent events from a stream.
type Reader interface {
	// Next returns the next SSE event. Returns io.EOF when the stream ends.
	Next() (*Event, error)
	// LastEventID returns the last event ID seen at an event boundary.
	LastEventID() string
	// RetryAfter returns the reconnection delay requested by the server, or 0.
	RetryAfter() time.Duration
	// Close releases the underlying resources.
	Close() error
}

type reader struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	started bool
	// skipLF drops an LF that opens the next read after a CR ended a line.
	skipLF bool

	idBuffer    string
	lastEventID string
	retry       time.Duration
}

// NewReader creates an SSE reader from a readable stream.
func NewReader(body io.ReadCloser) Reader {
	r := &reader{body: body}
	r.scanner = bufio.NewScanner(body)
	r.scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	r.scanner.Split(r.scanLines)
	return r
}

// NewReaderWithLastEventID creates a reader that resumes with a known last event ID,
// as after a reconnect.
func NewReaderWithLastEventID(body io.ReadCloser, lastEventID string) Reader {
	r := NewReader(body).(*reader)
	r.idBuffer = lastEventID
	r.lastEventID = lastEventID
	return r
}

// Next returns the next SSE event. Returns io.EOF when the stream ends.
// A block cut off by the end of the stream is discarded.
func (r *reader) Next() (*Event, error) {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if !r.started {
			r.started = true
			line = strings.TrimPrefix(line, bom)
		}

		// Blank line signals end of event
		if line == "" {
			r.lastEventID = r.idBuffer
			if !hasData {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = DefaultEventType
			}
			return &Event{Event: eventType, Data: data.String(), ID: r.lastEventID}, nil
		}

		// Skip comments
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseLine(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.idBuffer = value
			}
		case "retry":
			if ms, ok := parseRetry(value); ok {
				r.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// LastEventID returns the last event ID seen at an event boundary.
func (r *reader) LastEventID() string {
	return r.lastEventID
}

// RetryAfter returns the reconnection delay requested by the server, or 0.
func (r *reader) RetryAfter() time.Duration {
	return r.retry
}

// Close releases the underlying stream.
func (r *reader) Close() error {
	return r.body.Close()
}

// parseLine parses a single SSE line into field and value.
func parseLine(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	// Strip single leading space after colon
	if value != "" && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

// parseRetry accepts ASCII digits only.
func parseRetry(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// scanLines splits on LF, CR or CRLF. A CR ends its line at once; an LF
// right after it is dropped even when it arrives in a later read. An
// unterminated trailing line is dropped.
func (r *reader) scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if r.skipLF && len(data) > 0 {
		r.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		r.skipLF = !atEOF
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

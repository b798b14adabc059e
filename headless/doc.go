// Package headless is a Go-native page host for the reload notifier.
//
// A Browser loads a page over HTTP and runs the page script against a Page,
// which implements reload.Host. Readiness is reached once the document has
// been parsed with golang.org/x/net/html; images, styles and scripts it
// references are counted but never fetched. Callbacks for a page run one at
// a time on that page's event loop.
//
// Push channels follow the browser EventSource model: they reconnect after
// network errors and stream ends, send Last-Event-ID on reconnect, and close
// for good when the server answers with a non-200 status or a content type
// other than text/event-stream.
//
// Reload ends the current page. The Browser then loads the page again, which
// runs the page script from scratch.
package headless

// Package eventstream reads text/event-stream bodies the way browsers do.
//
// Lines may end in LF, CR or CRLF, a leading byte order mark is skipped,
// comment lines are ignored, and an event is dispatched only once a blank
// line terminates a block that carried at least one data field. The last
// event id and the server requested reconnection delay persist across
// events and are exposed on the Reader.
//
//	r := eventstream.NewReader(resp.Body)
//	defer r.Close()
//	for {
//	    ev, err := r.Next()
//	    if err != nil {
//	        return err // io.EOF when the stream ends
//	    }
//	    handle(ev)
//	}
package eventstream

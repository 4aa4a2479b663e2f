// Package stream incrementally decodes the chat API's response body into
// text delta events.
//
// The body is a live octet stream of newline-delimited "data: <json>"
// frames. Framing is not guaranteed to align with chunk boundaries, so the
// decoder scans line-wise over the reader and a partial line at a chunk
// boundary is carried over, never dropped.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/valuin/radikari-chat-widget/internal/logging"
)

// dataPrefix marks lines that carry an event payload. Everything else
// (blank lines, comments, heartbeats) is ignored.
var dataPrefix = []byte("data: ")

// maxLineBytes bounds a single event line.
const maxLineBytes = 1 << 20

// Event is one parsed stream frame. Only "text-delta" events carry a
// payload; unknown types pass through Next unseen so the server can add
// event kinds without breaking older clients.
type Event struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
}

// Decoder yields text delta events from a response body, in stream order.
//
//	dec := stream.NewDecoder(body)
//	for dec.Next() {
//	    apply(dec.Current().Delta)
//	}
//	if err := dec.Err(); err != nil { ... }
type Decoder struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	current Event
	err     error
	done    bool
}

// NewDecoder creates a decoder over a response body. The decoder imposes
// no timeout of its own; it runs until the body ends or its reads fail.
func NewDecoder(body io.ReadCloser) *Decoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &Decoder{scanner: scanner, body: body}
}

// Next advances to the next text delta. It returns false when the stream
// ends, errors, or is closed; Err distinguishes the cases.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		var ev Event
		if err := json.Unmarshal(bytes.TrimPrefix(line, dataPrefix), &ev); err != nil {
			// A torn or garbled frame must not kill the stream. Skip it
			// and keep decoding.
			logging.Debug().Err(err).Msg("skipping undecodable stream frame")
			continue
		}
		if ev.Type != "text-delta" || ev.Delta == "" {
			continue
		}

		d.current = ev
		return true
	}

	d.done = true
	d.err = d.scanner.Err()
	return false
}

// Current returns the event produced by the last successful Next.
func (d *Decoder) Current() Event {
	return d.current
}

// Err returns the terminal read error, if any. A normally completed
// stream returns nil.
func (d *Decoder) Err() error {
	return d.err
}

// Close releases the underlying body. Closing mid-stream causes the next
// read to stop promptly.
func (d *Decoder) Close() error {
	d.done = true
	return d.body.Close()
}

// Package sse decodes the agent's event-stream response body.
//
// The agent speaks a text/event-stream variant over a plain POST response
// (EventSource cannot send a body or an Authorization header, so both ends
// handle the framing by hand). Each logical record is an optional "event:"
// line, a "data:" line holding one JSON-encoded stream event, and a blank
// line that flushes the record.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/pkg/logger"
)

// Decoder turns a byte stream into a sequence of stream events. It reads
// incrementally, so records split across arbitrary chunk boundaries decode
// the same as a single contiguous read. A Decoder is not restartable; a
// fresh decode needs a fresh reader.
type Decoder struct {
	r       *bufio.Reader
	pending string
	logger  *logger.Logger
	done    bool
}

// NewDecoder creates a decoder over the response body.
func NewDecoder(r io.Reader, log *logger.Logger) *Decoder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Decoder{
		r:      bufio.NewReader(r),
		logger: log,
	}
}

// Next returns the next decoded event, or io.EOF when the byte source is
// exhausted. Records whose data payload is not valid JSON are skipped.
// A final unterminated "data:" payload (no trailing blank line) is still
// parsed and emitted before EOF.
func (d *Decoder) Next() (*model.StreamEvent, error) {
	if d.done {
		return nil, io.EOF
	}

	for {
		line, err := d.r.ReadString('\n')

		if len(line) > 0 {
			trimmed := strings.TrimSuffix(line, "\n")
			trimmed = strings.TrimSuffix(trimmed, "\r")

			switch {
			case strings.HasPrefix(trimmed, "event:"):
				// The event kind lives in the data payload's event_type
				// field; the label line carries no extra information.
			case strings.HasPrefix(trimmed, "data:"):
				d.pending = strings.TrimSpace(trimmed[len("data:"):])
			case trimmed == "" && d.pending != "":
				ev, ok := d.flush()
				if ok {
					return ev, nil
				}
			}
		}

		if err != nil {
			d.done = true
			if err == io.EOF {
				if d.pending != "" {
					if ev, ok := d.flush(); ok {
						return ev, nil
					}
				}
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// flush parses the pending data payload. Malformed payloads are dropped so
// one bad record cannot kill the rest of the stream.
func (d *Decoder) flush() (*model.StreamEvent, bool) {
	payload := d.pending
	d.pending = ""

	var ev model.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.logger.Warn("failed to parse stream event, skipping record",
			zap.String("payload", payload),
			zap.Error(err),
		)
		return nil, false
	}
	return &ev, true
}

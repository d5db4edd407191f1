package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses SSE events from a stream. A Reader built with NewTeeReader
// also copies every raw line, comments included, to a destination writer.
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	current Event
	pending bool
	hasData bool
}

// NewReader returns a Reader parsing events from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, io.Discard)
}

// NewTeeReader returns a Reader parsing events from src that writes the raw
// stream through to dest as it goes.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{scanner: scanner, dest: dest}
}

// Next blocks until a complete event is read. It returns nil, nil once src
// is exhausted. An event cut off by the end of the stream is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Scan strips the newline; put it back for the copy.
		if _, err := io.WriteString(r.dest, line+"\n"); err != nil {
			return nil, err
		}

		switch {
		case line == "":
			if r.pending {
				return r.take(), nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		default:
			r.field(line)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if r.pending {
		return r.take(), nil
	}
	return nil, nil
}

// field applies one "name: value" line to the event being built. A single
// space after the colon is dropped; a line without a colon is a bare name.
func (r *Reader) field(line string) {
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch name {
	case "data":
		if r.hasData {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
	case "id":
		r.current.ID = value
	default:
		// retry and unknown fields are ignored.
		return
	}
	r.pending = true
}

func (r *Reader) take() *Event {
	ev := r.current
	r.current = Event{}
	r.pending = false
	r.hasData = false
	return &ev
}

package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Frame is one blank-line terminated block of a stream.
type Frame struct {
	Event string
	Data  []string
	ID    string
	Retry time.Duration

	// Comments holds comment lines without the leading colon.
	Comments []string
}

// KeepAlive reports whether the frame carries only comments.
func (f Frame) KeepAlive() bool {
	return f.Event == "" && len(f.Data) == 0
}

// Reader parses frames from a byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next frame. It returns io.EOF when the stream ends
// cleanly; a partial frame at the end of the stream is dropped. A frame
// with a malformed field is read to its end and returned with a
// MalformedFrame error, so the caller can skip it and keep reading.
func (r *Reader) Next() (Frame, error) {
	var f Frame
	var bad error
	started := false
	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if started {
				return f, bad
			}
			continue
		}
		started = true

		if strings.HasPrefix(line, ":") {
			f.Comments = append(f.Comments, strings.TrimPrefix(line[1:], " "))
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			f.Data = append(f.Data, value)
		case "id":
			f.ID = value
		case "retry":
			ms, err := strconv.Atoi(value)
			if err != nil {
				if bad == nil {
					bad = errors.New("E041").WithDetailf("retry %q is not a number", value)
				}
				continue
			}
			f.Retry = time.Duration(ms) * time.Millisecond
		}
	}
}

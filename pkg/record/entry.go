package record

import (
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vango-dev/patchwire/pkg/stream"
)

// Entry is one recorded frame.
type Entry struct {
	At       time.Time `msgpack:"at"`
	Stream   string    `msgpack:"stream"`
	Event    string    `msgpack:"event,omitempty"`
	ID       string    `msgpack:"id,omitempty"`
	RetryMS  int64     `msgpack:"retry,omitempty"`
	Data     []string  `msgpack:"data,omitempty"`
	Comments []string  `msgpack:"comments,omitempty"`
}

// NewEntry records f as seen on stream id at t.
func NewEntry(id string, t time.Time, f stream.Frame) Entry {
	return Entry{
		At:       t,
		Stream:   id,
		Event:    f.Event,
		ID:       f.ID,
		RetryMS:  f.Retry.Milliseconds(),
		Data:     f.Data,
		Comments: f.Comments,
	}
}

// Frame returns the recorded frame.
func (e Entry) Frame() stream.Frame {
	return stream.Frame{
		Event:    e.Event,
		ID:       e.ID,
		Retry:    time.Duration(e.RetryMS) * time.Millisecond,
		Data:     e.Data,
		Comments: e.Comments,
	}
}

// Reader decodes entries.
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(r)}
}

// Next returns the next entry, or io.EOF at the end of the recording.
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ReadAll returns every entry of r.
func ReadAll(r io.Reader) ([]Entry, error) {
	rd := NewReader(r)
	var out []Entry
	for {
		e, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

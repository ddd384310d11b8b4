package record

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/patchwire/pkg/stream"
)

// Recorder writes the frames of any number of streams to one sink. It is
// safe for concurrent use.
type Recorder struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	entries int
	err     error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the time source for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tap returns a frame tap that records frames under the stream id.
func (r *Recorder) Tap(id string) func(stream.Frame) {
	return func(f stream.Frame) {
		r.Record(id, f)
	}
}

// Record writes one frame. After the first write error the recorder stops
// writing and Close reports the error.
func (r *Recorder) Record(id string, f stream.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.sink.Write(NewEntry(id, r.now(), f)); err != nil {
		r.err = err
		r.logger.Error("recording stopped", "error", err)
		return
	}
	r.entries++
}

// Entries returns the number of recorded frames.
func (r *Recorder) Entries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries
}

// Close closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sink.Close(); err != nil {
		return err
	}
	return r.err
}

package record

import (
	"context"
	"io"
	"time"

	"github.com/vango-dev/patchwire/pkg/stream"
)

// ReplayOptions control playback.
type ReplayOptions struct {
	// Speed scales the recorded gaps between frames; 2 plays twice as
	// fast. Zero or less plays without pauses.
	Speed float64

	// Stream keeps only the frames of one recorded stream.
	Stream string
}

// Replay writes the entries of src to c as a live stream and returns once
// every frame has been written or ctx is done. c ends in the closed state
// after the last frame.
func Replay(ctx context.Context, src *Reader, c *stream.Consumer, opts ReplayOptions) error {
	pr, pw := io.Pipe()
	c.Consume(pr)
	w := stream.NewWriter(pw)

	var last time.Time
	for {
		e, err := src.Next()
		if err == io.EOF {
			return pw.Close()
		}
		if err != nil {
			pw.CloseWithError(err)
			return err
		}
		if opts.Stream != "" && e.Stream != opts.Stream {
			continue
		}
		if opts.Speed > 0 && !last.IsZero() {
			if gap := time.Duration(float64(e.At.Sub(last)) / opts.Speed); gap > 0 {
				t := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					t.Stop()
					pw.CloseWithError(ctx.Err())
					return ctx.Err()
				case <-t.C:
				}
			}
		}
		last = e.At
		if err := ctx.Err(); err != nil {
			pw.CloseWithError(err)
			return err
		}
		if err := w.WriteFrame(e.Frame()); err != nil {
			return err
		}
	}
}

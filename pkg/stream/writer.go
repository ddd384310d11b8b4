package stream

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ContentType is the media type of a patch stream.
const ContentType = "text/event-stream"

// Writer writes frames. Each frame is written with a single Write call.
// It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer writing to w. If w is an http.Flusher it is
// flushed after every frame.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewResponseWriter sets the stream headers on w and returns a Writer.
func NewResponseWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return NewWriter(w)
}

// WriteFrame writes f.
func (w *Writer) WriteFrame(f Frame) error {
	var buf bytes.Buffer
	for _, c := range f.Comments {
		buf.WriteString(":")
		if c != "" {
			buf.WriteString(" " + c)
		}
		buf.WriteByte('\n')
	}
	if f.Event != "" {
		buf.WriteString("event: " + f.Event + "\n")
	}
	if f.ID != "" {
		buf.WriteString("id: " + f.ID + "\n")
	}
	if f.Retry > 0 {
		buf.WriteString("retry: " + strconv.FormatInt(f.Retry.Milliseconds(), 10) + "\n")
	}
	for _, d := range f.Data {
		buf.WriteString("data: " + d + "\n")
	}
	buf.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if fl, ok := w.w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}

// Send encodes and writes ev.
func (w *Writer) Send(ev Event) error {
	return w.WriteFrame(Encode(ev))
}

// KeepAlive writes a comment-only frame.
func (w *Writer) KeepAlive() error {
	return w.Send(KeepAlive{})
}

// wsWriter sends each Write as one text message.
type wsWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (w wsWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewWebSocketWriter returns a Writer that sends one text message per
// frame over conn.
func NewWebSocketWriter(conn *websocket.Conn, writeTimeout time.Duration) *Writer {
	return NewWriter(wsWriter{conn: conn, timeout: writeTimeout})
}

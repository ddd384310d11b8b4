package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/patchwire/pkg/action"
	"github.com/vango-dev/patchwire/pkg/morph"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

// Server is the demo backend. Its state is shared by every client.
type Server struct {
	router   chi.Router
	logger   *slog.Logger
	tick     time.Duration
	upgrader websocket.Upgrader

	mu       sync.Mutex
	count    int
	attempts int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTick sets the clock interval.
func WithTick(d time.Duration) Option {
	return func(s *Server) {
		s.tick = d
	}
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		logger: slog.Default(),
		tick:   time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/", s.page)
	r.Post("/increment", s.increment)
	r.Post("/reset", s.reset)
	r.Get("/greet", s.greet)
	r.Get("/clock", s.clock)
	r.Get("/ws", s.ws)
	r.Get("/script", s.script)
	r.Post("/flaky", s.flaky)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Count returns the server-side counter.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("demo listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", r.Header.Get(action.HeaderRequestID),
			"duration", time.Since(start))
	})
}

// readSignals decodes the signals an action sent: the query parameter for
// GET, the body otherwise.
func readSignals(r *http.Request, v any) error {
	if r.Method == http.MethodGet {
		raw := r.URL.Query().Get(action.QueryParam)
		if raw == "" {
			return nil
		}
		return json.Unmarshal([]byte(raw), v)
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(Page))
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Count int `json:"count"`
	}
	if err := readSignals(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n := in.Count + 1
	s.mu.Lock()
	s.count = n
	s.mu.Unlock()

	sw := stream.NewResponseWriter(w)
	_ = sw.Send(stream.SignalPatch{Patch: signal.Patch{
		Signals: json.RawMessage(`{"count":` + strconv.Itoa(n) + `}`),
	}})
	_ = sw.Send(stream.ElementPatch{Patch: morph.Patch{
		Selector: "#log",
		Mode:     morph.ModeAppend,
		Elements: fmt.Sprintf(`<li id="entry-%d">count is %d</li>`, n, n),
	}})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"count":0}`))
}

func (s *Server) greet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := readSignals(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := in.Name
	if name == "" {
		name = "stranger"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<div id="greeting">Hello, %s</div>`, html.EscapeString(name))
}

// ticks sends clock patches through send until ctx is done or n ticks
// have been sent. n <= 0 means unbounded.
func (s *Server) ticks(ctx context.Context, n int, send func(stream.Event) error) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for i := 0; n <= 0 || i < n; i++ {
		now, _ := json.Marshal(map[string]string{"now": time.Now().UTC().Format(time.RFC3339)})
		if err := send(stream.SignalPatch{Patch: signal.Patch{Signals: now}}); err != nil {
			return
		}
		if n > 0 && i == n-1 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) clock(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	sw := stream.NewResponseWriter(w)
	s.ticks(r.Context(), n, sw.Send)
}

func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	sw := stream.NewWebSocketWriter(conn, 10*time.Second)
	s.ticks(r.Context(), n, sw.Send)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) script(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript")
	_, _ = w.Write([]byte(`$count = 100`))
}

// flaky answers 503 until it has been called ok times.
func (s *Server) flaky(w http.ResponseWriter, r *http.Request) {
	ok, _ := strconv.Atoi(r.URL.Query().Get("ok"))
	s.mu.Lock()
	s.attempts++
	attempts := s.attempts
	s.mu.Unlock()
	if attempts < ok {
		http.Error(w, "try again", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"attempts":%d}`, attempts)
}

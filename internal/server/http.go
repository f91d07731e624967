// Package server exposes the local cache over HTTP for previewing entries in
// a browser, plus a websocket feed of cache events.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"

	"github.com/mithrel/whtreader/internal/notify"
	"github.com/mithrel/whtreader/internal/render"
	synsvc "github.com/mithrel/whtreader/internal/sync"
	"github.com/mithrel/whtreader/pkg/api"
)

// Service is the part of the sync service the server reads from.
type Service interface {
	Lookup(ctx context.Context, input string) (api.Author, error)
	Authors(ctx context.Context) ([]api.Author, error)
	Entries(ctx context.Context, authorID, visibility string) ([]api.Entry, error)
	Entry(ctx context.Context, id string) (api.Entry, error)
	ResyncEntries(ctx context.Context, authorID string) (synsvc.SyncReport, error)
}

// Server serves the preview endpoints backed by the sync service.
type Server struct {
	cfg      *viper.Viper
	svc      Service
	events   *notify.Broker
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg *viper.Viper, svc Service, events *notify.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		svc:    svc,
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
	}
}

// Router returns an http.Handler with registered routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /authors", s.handleAuthors)
	mux.HandleFunc("GET /authors/{author}/avatar", s.handleAvatar)
	mux.HandleFunc("GET /authors/{author}/entries", s.handleEntries)
	mux.HandleFunc("POST /authors/{author}/sync", s.auth(s.handleSync))
	mux.HandleFunc("GET /entry", s.handleEntry)
	mux.HandleFunc("GET /events", s.handleEvents)
	return withLogging(s.logger, mux)
}

// Run listens on serve.addr until ctx is canceled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.GetString("serve.addr"))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("preview server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimSpace(s.cfg.GetString("serve.token"))
		got := r.Header.Get("Authorization")
		if tok == "" || !strings.HasPrefix(got, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(got, "Bearer ")) != tok {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or wrong bearer token")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, render.EmptyHTML)
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.svc.Authors(r.Context())
	if err != nil {
		s.fail(w, "list authors", err)
		return
	}
	// Avatars are served separately.
	for i := range authors {
		authors[i].Avatar = nil
	}
	if authors == nil {
		authors = []api.Author{}
	}
	writeJSON(w, http.StatusOK, authors)
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	author, err := s.svc.Lookup(r.Context(), r.PathValue("author"))
	if err != nil {
		s.fail(w, "lookup author", err)
		return
	}
	avatar := author.Avatar
	if len(avatar) == 0 {
		avatar = synsvc.PlaceholderAvatar()
	}
	w.Header().Set("Content-Type", http.DetectContentType(avatar))
	_, _ = w.Write(avatar)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	author, err := s.svc.Lookup(r.Context(), r.PathValue("author"))
	if err != nil {
		s.fail(w, "lookup author", err)
		return
	}
	entries, err := s.svc.Entries(r.Context(), author.ID, r.URL.Query().Get("visibility"))
	if err != nil {
		s.fail(w, "list entries", err)
		return
	}
	// Lists carry metadata only; /entry serves the document.
	for i := range entries {
		entries[i].HTML = ""
	}
	if entries == nil {
		entries = []api.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	uri := strings.TrimSpace(r.URL.Query().Get("uri"))
	if uri == "" {
		writeHTML(w, render.EmptyHTML)
		return
	}
	entry, err := s.svc.Entry(r.Context(), uri)
	if err != nil {
		s.fail(w, "get entry", err)
		return
	}
	writeHTML(w, entry.HTML)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	author, err := s.svc.Lookup(r.Context(), r.PathValue("author"))
	if err != nil {
		s.fail(w, "lookup author", err)
		return
	}
	report, err := s.svc.ResyncEntries(r.Context(), author.ID)
	if err != nil {
		s.fail(w, "sync entries", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleEvents upgrades to a websocket and forwards every published event
// as a JSON text frame until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "events are not enabled")
		return
	}
	// Subscribe before the handshake completes so a client sees every event
	// published after its dial returns.
	events, cancel := s.events.Subscribe(notify.DefaultBuffer)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reads only detect the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			ev.Author.Avatar = nil
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event subscriber dropped", "error", err)
				return
			}
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, api.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, api.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, api.ErrRemoteFetch):
		writeError(w, http.StatusBadGateway, "UpstreamFailure", err.Error())
	default:
		s.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", op+" failed")
	}
}

// sameHost accepts websocket clients from pages this server served, and
// non-browser clients that send no Origin.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, host, ok := strings.Cut(origin, "://")
	return ok && strings.EqualFold(host, r.Host)
}

func writeHTML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets the websocket upgrade reach the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

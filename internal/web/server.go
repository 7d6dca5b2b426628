package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, session Session, rotation RotationSetter, overlayCfg OverlayConfig) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, session, rotation, overlayCfg, subFS),
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /state", s.handlers.HandleState)
	mux.HandleFunc("PATCH /state", s.handlers.HandleUpdateState)
	mux.HandleFunc("POST /flash/toggle", s.handlers.HandleToggleFlash)
	mux.HandleFunc("POST /focus", s.handlers.HandleFocus)
	mux.HandleFunc("POST /focus/reset", s.handlers.HandleResetFocus)
	mux.HandleFunc("POST /orientation/refresh", s.handlers.HandleRefreshOrientation)
	mux.HandleFunc("PUT /rotation", s.handlers.HandleRotation)
	mux.HandleFunc("GET /corner/{position}", s.handlers.HandleCorner)
	mux.HandleFunc("POST /corner/{position}", s.handlers.HandleCorner)
	mux.HandleFunc("PUT /quad", s.handlers.HandleQuad)
	mux.HandleFunc("GET /quad", s.handlers.HandleQuadState)
	mux.HandleFunc("POST /quad/{position}/highlight", s.handlers.HandleHighlightCorner)
	mux.HandleFunc("DELETE /quad/{position}/highlight", s.handlers.HandleHighlightCorner)
	mux.HandleFunc("GET /overlay", s.handlers.HandleOverlay)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

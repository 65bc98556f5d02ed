package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/handlers"
)

const wsPath = "/ws"

type middleware func(http.Handler) http.Handler

// chain wraps h so that mws run in the order given
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// withConditionalMiddleware builds two stacks over the router. The websocket
// upgrade only gets CORS and a session: its connection is hijacked, so status
// logging and panic recovery have nothing to write to.
func (s *Server) withConditionalMiddleware(router http.Handler) http.Handler {
	api := chain(router, s.logRequests, allowCrossOrigin, s.recoverPanics, s.app.Sessions.Middleware)
	ws := chain(router, allowCrossOrigin, s.app.Sessions.Middleware)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == wsPath {
			ws.ServeHTTP(w, r)
			return
		}
		api.ServeHTTP(w, r)
	})
}

// logRequests logs one line per request once the response is written.
// Server errors log at error, client errors at warn, the rest at debug so
// that pollers do not flood the info log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		event := s.app.Logger.Debug()
		switch {
		case rec.status >= http.StatusInternalServerError:
			event = s.app.Logger.Error()
		case rec.status >= http.StatusBadRequest:
			event = s.app.Logger.Warn()
		}
		if r.URL.RawQuery != "" {
			event = event.Str("query", r.URL.RawQuery)
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.written).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// allowCrossOrigin answers preflights itself; the API only takes GET and POST
func allowCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics turns a handler panic into the JSON 500 envelope
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.app.Logger.Error().
					Str("panic", fmt.Sprintf("%v", v)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("stack", common.PanicStack()).
					Msg("Handler panicked")
				handlers.WriteError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(p []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(p)
	rec.written += n
	return n, err
}

// Hijack lets a wrapped writer still upgrade to a websocket
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T cannot be hijacked", rec.ResponseWriter)
	}
	return hijacker.Hijack()
}

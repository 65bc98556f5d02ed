package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc(wsPath, s.app.WSHandler.HandleWebSocket)

	// API routes - Operations (start/poll background jobs of the caller's session)
	mux.HandleFunc("/api/operations", s.app.OperationsHandler.ListHandler)      // GET - session's operations
	mux.HandleFunc("/api/operations/poll", s.app.OperationsHandler.PollHandler) // GET ?key=&cursor=
	mux.HandleFunc("/api/operations/step", s.app.OperationsHandler.StepHandler) // GET ?action=start|poll&kind=&target=
	mux.HandleFunc("/api/operations/", s.app.OperationsHandler.StartHandler)    // POST /{kind}

	// API routes - History
	mux.HandleFunc("/api/history", s.app.HistoryHandler.ListHandler)
	mux.HandleFunc("/api/history/", s.app.HistoryHandler.GetHandler) // GET /{job_id}

	// API routes - Content (targets for the operations above)
	mux.HandleFunc("/api/content", s.app.ContentHandler.ListHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

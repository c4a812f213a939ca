package router

import (
	"net/http"

	"civicfix-api/internal/handlers"
)

// Setup configures and returns the HTTP router with all application routes.
func Setup(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Issue endpoints
	mux.HandleFunc("POST /api/issues", h.HandleCreateIssue)
	mux.HandleFunc("GET /api/issues", h.HandleListIssues)
	mux.HandleFunc("GET /api/issues/{id}", h.HandleGetIssue)
	mux.HandleFunc("PATCH /api/issues/{id}/status", h.HandleUpdateStatus)
	mux.HandleFunc("DELETE /api/issues/{id}", h.HandleDeleteIssue)

	// Stored photos
	mux.HandleFunc("GET /uploads/{name}", h.HandleUploadedPhoto)

	return mux
}

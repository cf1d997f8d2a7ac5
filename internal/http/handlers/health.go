package handlers

import "net/http"

// HealthHandler answers liveness probes.
type HealthHandler struct {
	service string
	version string
}

// NewHealthHandler creates a health handler reporting the given service
// name and build version.
func NewHealthHandler(service, version string) *HealthHandler {
	if service == "" {
		service = "callflow"
	}
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{service: service, version: version}
}

// Health is the HTTP handler for GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.service,
		"version": h.version,
	})
}

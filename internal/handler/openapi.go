package handler

import (
	"net/http"

	"github.com/handsdb/hands/internal/openapi"
	"github.com/handsdb/hands/internal/source"
)

// OpenAPIHandler serves the OpenAPI document, regenerated from the registry
// on every request so reloaded sources show up at once.
type OpenAPIHandler struct {
	registry *source.Registry
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(registry *source.Registry) *OpenAPIHandler {
	return &OpenAPIHandler{registry: registry}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.Generate(baseURL(r), h.registry.List()))
}

// baseURL derives the server URL from the request, honoring the scheme set
// by a TLS-terminating proxy.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

package handlers

import "net/http"

// HelpHandler serves the help document.
type HelpHandler struct {
	provider HelpProvider
}

// NewHelpHandler creates a new HelpHandler.
func NewHelpHandler(provider HelpProvider) *HelpHandler {
	return &HelpHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HelpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.HelpContent())
}

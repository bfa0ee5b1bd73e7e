package handlers

import "net/http"

// HandleHealth reports that the process is serving. It does not look at
// the run state, so it stays "ok" during a deployment.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

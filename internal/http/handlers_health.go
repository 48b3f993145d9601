package httpx

import (
	"io"
	"net/http"
)

// healthHandler answers liveness probes. It only reports that the process is
// up and serving; dependency reachability is not part of this check.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// HEAD probes get headers only.
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}
}

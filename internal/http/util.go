package httpx

import (
	"net/http"
	"strconv"
)

// parseIntQuery parses an integer query parameter, falling back to def on
// absence or malformed input.
func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// parseIDPath parses the {id} path value as a positive int64.
func parseIDPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

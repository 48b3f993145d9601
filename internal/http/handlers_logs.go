package httpx

import (
	"bytes"
	"net/http"

	"github.com/contactdesk/score-api/internal/service"
)

// LogHandlers provides HTTP handlers over the score log read model.
type LogHandlers struct {
	Svc *service.ScoreLogService
}

// ListLogs returns one page of parsed log entries, newest first.
func (h *LogHandlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	page := parseIntQuery(r, "page", 1)
	perPage := parseIntQuery(r, "per_page", 0)

	result, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// DownloadLogs streams the full log as a CSV attachment. The export is built
// up front so a missing log source can still produce a clean 404.
func (h *LogHandlers) DownloadLogs(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Svc.WriteCSV(r.Context(), &buf); err != nil {
		WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="contact_scores.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		// Client disconnected mid-download; nothing to recover.
		return
	}
}

// LogStats returns summary statistics over the score log.
func (h *LogHandlers) LogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

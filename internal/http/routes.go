package httpx

import (
	"log/slog"
	"net/http"

	"github.com/contactdesk/score-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Contacts *service.ContactService
	Logs     *service.ScoreLogService
	Jobs     *service.JobService
	Logger   *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	contactHandlers := &ContactHandlers{Svc: services.Contacts}
	logHandlers := &LogHandlers{Svc: services.Logs}
	jobHandlers := &JobHandlers{Svc: services.Jobs}

	mux.Handle("GET /api/contacts/{id}", http.HandlerFunc(contactHandlers.GetContact))
	mux.Handle("POST /api/contacts/{id}/score", http.HandlerFunc(contactHandlers.TriggerScore))

	mux.Handle("GET /api/logs", http.HandlerFunc(logHandlers.ListLogs))
	mux.Handle("GET /api/logs/download", http.HandlerFunc(logHandlers.DownloadLogs))
	mux.Handle("GET /api/logs/stats", http.HandlerFunc(logHandlers.LogStats))

	mux.Handle("GET /api/jobs/stats", http.HandlerFunc(jobHandlers.JobStats))
	mux.Handle("GET /api/jobs/{id}", http.HandlerFunc(jobHandlers.GetJob))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

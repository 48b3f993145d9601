package httpx

import (
	"errors"
	"net/http"

	"github.com/contactdesk/score-api/internal/domain/model"
	"github.com/contactdesk/score-api/internal/service"
	"github.com/google/uuid"
)

// JobHandlers provides HTTP handlers for job queue visibility.
type JobHandlers struct {
	Svc *service.JobService
}

// JobStats returns per-status job counts for a queue.
func (h *JobHandlers) JobStats(w http.ResponseWriter, r *http.Request) {
	queue := model.Queue(r.URL.Query().Get("queue"))
	if queue == "" {
		queue = model.QueueContacts
	}
	if !queue.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_queue",
			Err:     errors.New("queue name is invalid"),
		})
		return
	}

	stats, err := h.Svc.Stats(r.Context(), queue)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// GetJob returns a single job so clients can poll trigger outcomes.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id must be a valid UUID"),
		})
		return
	}

	job, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Package httpx provides the HTTP handlers for the contact score API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/contactdesk/score-api/internal/service"
)

// ContactHandlers provides HTTP handlers for contact operations.
type ContactHandlers struct {
	Svc *service.ContactService
}

// GetContact returns the current snapshot of a contact.
func (h *ContactHandlers) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPath(r)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("contact id must be a positive integer"),
		})
		return
	}

	contact, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, contact)
}

// TriggerScore enqueues an asynchronous score job for the contact.
//
// The response is 202 Accepted with the job's identity: the score itself is
// produced by the worker later, so clients poll the job or watch the
// broadcast channel.
func (h *ContactHandlers) TriggerScore(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDPath(r)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("contact id must be a positive integer"),
		})
		return
	}

	job, err := h.Svc.TriggerScore(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"queue":      job.Queue,
		"status":     job.Status,
		"contact_id": id,
	})
}

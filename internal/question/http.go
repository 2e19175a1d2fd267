package question

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
)

const maxListLimit = 200

// HTTPHandlers serves the question catalogue.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "question_http").Logger(),
	}
}

// List handles GET /v1/questions?difficulty=&question_type=&limit=
func (h *HTTPHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Difficulty:   q.Get("difficulty"),
		QuestionType: q.Get("question_type"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxListLimit {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "limit must be between 1 and 200", "limit")
			return
		}
		filter.Limit = limit
	}

	qs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if qs == nil {
		qs = []Question{}
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]interface{}{"questions": qs})
}

// Get handles GET /v1/questions/{id}
func (h *HTTPHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := questionIDFrom(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, q)
}

// Create handles POST /v1/questions
func (h *HTTPHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var d Draft
	if !httperrors.DecodeAndValidate(w, r, &d) {
		return
	}
	q, err := h.service.Create(r.Context(), d)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusCreated, q)
}

// Delete handles DELETE /v1/questions/{id}
func (h *HTTPHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := questionIDFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandlers) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuestionNotFound, "Question not found")
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidDraft):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
	default:
		h.logger.Error().Err(err).Msg("question request failed")
		httperrors.RespondInternalError(w, "Internal error")
	}
}

func questionIDFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQuestion, "Invalid question id")
		return uuid.Nil, false
	}
	return id, true
}

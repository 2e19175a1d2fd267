package practice

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/question"
	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
)

type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "practice_http").Logger(),
	}
}

type runRequest struct {
	Code     string `json:"code" validate:"required,max=65536"`
	Language string `json:"language" validate:"required,oneof=javascript python cpp java c"`
	Stdin    string `json:"stdin" validate:"max=65536"`
}

type submitRequest struct {
	QuestionID string `json:"question_id" validate:"required,uuid"`
	Code       string `json:"code" validate:"required,max=65536"`
	Language   string `json:"language" validate:"required,oneof=javascript python cpp java c"`
}

// Run handles POST /v1/practice/run
func (h *HTTPHandlers) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.service.Run(r.Context(), req.Code, req.Language, req.Stdin)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, res)
}

// Submit handles POST /v1/practice/submit
func (h *HTTPHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.service.Submit(r.Context(), uuid.MustParse(req.QuestionID), req.Code, req.Language)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, res)
}

func (h *HTTPHandlers) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, question.ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuestionNotFound, "Question not found")
	case errors.Is(err, question.ErrNoQuestion):
		httperrors.RespondError(w, http.StatusUnprocessableEntity, httperrors.ErrCodeNoQuestionAvailable, "Question has no test cases")
	case errors.Is(err, execution.ErrUnsupportedLanguage):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, execution.ErrExecutionFailed):
		h.logger.Warn().Err(err).Msg("practice run failed")
		httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeExecutionFailed, "Code execution failed. Please try again.")
	default:
		h.logger.Error().Err(err).Msg("practice request failed")
		httperrors.RespondInternalError(w, "Internal error")
	}
}

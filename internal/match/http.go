package match

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/auth"
	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for room operations.
type HTTPHandlers struct {
	coord  *Coordinator
	logger zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for room endpoints.
func NewHTTPHandlers(coord *Coordinator, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		coord:  coord,
		logger: logger.With().Str("component", "room_http").Logger(),
	}
}

type createRoomRequest struct {
	Name       string `json:"name" validate:"omitempty,max=64"`
	Mode       string `json:"mode" validate:"omitempty,oneof=normal shortest debugging escape"`
	MaxPlayers int    `json:"max_players" validate:"omitempty,min=2,max=16"`
}

type joinByCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

type startRoundRequest struct {
	Mode            string `json:"mode" validate:"omitempty,oneof=normal shortest debugging escape"`
	Difficulty      string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Tier            string `json:"tier" validate:"omitempty,max=32"`
	DurationSeconds int    `json:"duration_seconds" validate:"omitempty,min=10,max=7200"`
}

type submitRequest struct {
	Code     string `json:"code" validate:"required,max=65536"`
	Language string `json:"language" validate:"required,oneof=javascript python cpp java c"`
}

type disqualifyRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// CreateRoom handles POST /v1/rooms
func (h *HTTPHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}

	var req createRoomRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}

	snap, err := h.coord.CreateRoom(r.Context(), CreateParams{
		Name:       req.Name,
		Host:       caller,
		Mode:       Mode(req.Mode),
		MaxPlayers: req.MaxPlayers,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusCreated, snap.ViewFor(caller.UserID))
}

// ListRooms handles GET /v1/rooms?status=&mode=&open=true
func (h *HTTPHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Mode:   Mode(q.Get("mode")),
	}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "open must be a boolean", "open")
			return
		}
		filter.HasFreeSlot = open
	}

	var viewer uuid.UUID
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		viewer = claims.UserID
	}
	rooms := h.coord.ListRooms(filter)
	out := make([]Snapshot, len(rooms))
	for i, s := range rooms {
		out[i] = s.ViewFor(viewer)
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]interface{}{"rooms": out})
}

// GetRoom handles GET /v1/rooms/{id}
func (h *HTTPHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	snap, err := h.coord.GetRoom(roomID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	var viewer uuid.UUID
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		viewer = claims.UserID
	}
	httperrors.RespondJSON(w, http.StatusOK, snap.ViewFor(viewer))
}

// JoinRoom handles POST /v1/rooms/{id}/join
func (h *HTTPHandlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	snap, err := h.coord.JoinRoom(r.Context(), roomID, caller)
	h.respondRoom(w, caller, snap, err)
}

// JoinByCode handles POST /v1/rooms/join-by-code
func (h *HTTPHandlers) JoinByCode(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	var req joinByCodeRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}
	snap, err := h.coord.JoinByCode(r.Context(), req.Code, caller)
	h.respondRoom(w, caller, snap, err)
}

// LeaveRoom handles POST /v1/rooms/{id}/leave
func (h *HTTPHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	snap, err := h.coord.LeaveRoom(r.Context(), roomID, caller.UserID)
	h.respondRoom(w, caller, snap, err)
}

// StartRound handles POST /v1/rooms/{id}/start
func (h *HTTPHandlers) StartRound(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	var req startRoundRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}

	snap, err := h.coord.StartRound(r.Context(), roomID, caller.UserID, StartParams{
		Mode:            Mode(req.Mode),
		Difficulty:      req.Difficulty,
		Tier:            req.Tier,
		DurationSeconds: req.DurationSeconds,
	})
	h.respondRoom(w, caller, snap, err)
}

// Submit handles POST /v1/rooms/{id}/submissions
func (h *HTTPHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.coord.SubmitSolution(r.Context(), roomID, caller.UserID, req.Code, req.Language)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Submission.Late {
		status = http.StatusAccepted
	}
	res.Room = res.Room.ViewFor(caller.UserID)
	httperrors.RespondJSON(w, status, res)
}

// Disqualify handles POST /v1/rooms/{id}/disqualify
func (h *HTTPHandlers) Disqualify(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	var req disqualifyRequest
	if !httperrors.DecodeAndValidate(w, r, &req) {
		return
	}
	target := uuid.MustParse(req.UserID)

	snap, err := h.coord.Disqualify(r.Context(), roomID, caller.UserID, target, req.Reason)
	h.respondRoom(w, caller, snap, err)
}

// EndRound handles POST /v1/rooms/{id}/end
func (h *HTTPHandlers) EndRound(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	snap, err := h.coord.ForceEndRound(r.Context(), roomID, caller.UserID)
	h.respondRoom(w, caller, snap, err)
}

// Rematch handles POST /v1/rooms/{id}/rematch
func (h *HTTPHandlers) Rematch(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	snap, err := h.coord.Rematch(r.Context(), roomID, caller.UserID)
	h.respondRoom(w, caller, snap, err)
}

// DeleteRoom handles DELETE /v1/rooms/{id}
func (h *HTTPHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := participantFrom(w, r)
	if !ok {
		return
	}
	roomID, ok := roomIDFrom(w, r)
	if !ok {
		return
	}
	if err := h.coord.DeleteRoom(r.Context(), roomID, caller.UserID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandlers) respondRoom(w http.ResponseWriter, caller Participant, snap Snapshot, err error) {
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, snap.ViewFor(caller.UserID))
}

func (h *HTTPHandlers) respondErr(w http.ResponseWriter, err error) {
	status, code := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("room request failed")
		httperrors.RespondError(w, status, code, "Internal error")
		return
	}
	httperrors.RespondError(w, status, code, err.Error())
}

// ErrorStatus maps coordinator errors to an HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, httperrors.ErrCodeRoomNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, httperrors.ErrCodeForbidden
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, httperrors.ErrCodeInvalidRoomState
	case errors.Is(err, ErrFull):
		return http.StatusConflict, httperrors.ErrCodeRoomFull
	case errors.Is(err, ErrAlreadySubmitted):
		return http.StatusConflict, httperrors.ErrCodeAlreadySubmitted
	case errors.Is(err, ErrNoQuestionAvailable):
		return http.StatusUnprocessableEntity, httperrors.ErrCodeNoQuestionAvailable
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, httperrors.ErrCodeValidationFailed
	case errors.Is(err, ErrExecutionFailed):
		return http.StatusBadGateway, httperrors.ErrCodeExecutionFailed
	default:
		return http.StatusInternalServerError, httperrors.ErrCodeInternalError
	}
}

func participantFrom(w http.ResponseWriter, r *http.Request) (Participant, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return Participant{}, false
	}
	return Participant{UserID: claims.UserID, DisplayName: claims.DisplayName}, true
}

func roomIDFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRoomID, "Invalid room id")
		return uuid.Nil, false
	}
	return id, true
}

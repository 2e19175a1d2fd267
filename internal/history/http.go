package history

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
)

// Reader loads archived rounds.
type Reader interface {
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]Record, error)
}

// HTTPHandlers serves archived game results.
type HTTPHandlers struct {
	reader Reader
	logger zerolog.Logger
}

func NewHTTPHandlers(reader Reader, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		reader: reader,
		logger: logger.With().Str("component", "games_http").Logger(),
	}
}

// ListGames handles GET /v1/games/{roomID}
func (h *HTTPHandlers) ListGames(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("roomID"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRoomID, "Invalid room id")
		return
	}

	records, err := h.reader.ListByRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("list games failed")
		httperrors.RespondInternalError(w, "Failed to load games")
		return
	}
	if records == nil {
		records = []Record{}
	}
	// the archive holds submitted code; the API only returns summaries
	for i := range records {
		records[i].Detail = nil
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]interface{}{"games": records})
}

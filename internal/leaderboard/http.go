package leaderboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
)

// HTTPHandler exposes the leaderboard. When Redis is unavailable or empty
// it serves the latest Postgres snapshot.
type HTTPHandler struct {
	ranker    Ranker
	snapshots SnapshotStore
	logger    zerolog.Logger
}

func NewHTTPHandler(ranker Ranker, snapshots SnapshotStore, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		ranker:    ranker,
		snapshots: snapshots,
		logger:    logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// HandleGet handles GET /v1/leaderboard?limit=10
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	ctx := r.Context()
	var (
		top    []Entry
		source = "redis"
	)

	if h.ranker != nil {
		entries, err := h.ranker.Top(ctx, limit)
		if err != nil {
			h.logger.Warn().Err(err).Msg("redis leaderboard fetch failed")
		}
		top = entries
	}

	if len(top) == 0 {
		source = "snapshot"
		top = h.snapshotFallback(ctx, limit)
	}
	if top == nil {
		top = []Entry{}
	}

	httperrors.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"top":          top,
		"source":       source,
		"retrieved_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HTTPHandler) snapshotFallback(ctx context.Context, limit int) []Entry {
	if h.snapshots == nil {
		return nil
	}
	standings, err := h.snapshots.Latest(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("snapshot fetch failed")
		return nil
	}
	if len(standings) > limit {
		standings = standings[:limit]
	}
	return fromStandings(standings)
}

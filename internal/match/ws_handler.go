package match

import (
	"net/http"
	"strings"

	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
	ws "github.com/gokatarajesh/codearena/pkg/http/ws"
)

// HandleWebSocket upgrades HTTP connection to WebSocket and authenticates user.
// Browsers cannot set headers on the upgrade, so the token rides in ?token=.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Missing token")
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
		return
	}

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, claims.UserID)
}

package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	records []Record
	err     error
}

func (s stubReader) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]Record, error) {
	return s.records, s.err
}

func serveGames(reader Reader, path string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/games/{roomID}", NewHTTPHandlers(reader, zerolog.Nop()).ListGames)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListGamesStripsDetail(t *testing.T) {
	r := record(1)
	r.Detail = json.RawMessage(`{"code":"secret"}`)

	rec := serveGames(stubReader{records: []Record{r}}, "/v1/games/"+r.RoomID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	var body struct {
		Games []Record `json:"games"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Games, 1)
	assert.Equal(t, r.ID, body.Games[0].ID)
}

func TestListGamesErrors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, serveGames(stubReader{}, "/v1/games/zzz").Code)
	assert.Equal(t, http.StatusInternalServerError,
		serveGames(stubReader{err: errors.New("db down")}, "/v1/games/"+uuid.NewString()).Code)

	rec := serveGames(stubReader{}, "/v1/games/"+uuid.NewString())
	assert.JSONEq(t, `{"games":[]}`, rec.Body.String())
}

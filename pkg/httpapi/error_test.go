package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, http.StatusConflict, "ORG_IMPORT_CODE_TAKEN", "code taken", RequestMeta("req-9")))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, ContentTypeJSON, rec.Header().Get("Content-Type"))
	var got ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, ErrorEnvelope{Code: "ORG_IMPORT_CODE_TAKEN", Message: "code taken", Meta: map[string]string{"request_id": "req-9"}}, got)
}

func TestRequestMeta_Empty(t *testing.T) {
	require.Nil(t, RequestMeta(""))
	require.NoError(t, WriteJSON(nil, http.StatusOK, "ignored"))
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/evm-indexer/pkg/app/errors"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{name: "not found", err: apperrors.ResourceNotFoundError(nil, "alert not found"), code: http.StatusNotFound, message: "alert not found"},
		{name: "locked", err: apperrors.LockedError(nil, "lease held"), code: http.StatusLocked, message: "lease held"},
		{name: "general hides cause", err: apperrors.GeneralError(errors.New("pq: boom")), code: http.StatusInternalServerError, message: "Internal Server Error"},
		{name: "plain error", err: errors.New("boom"), code: http.StatusInternalServerError, message: "Unexpected Service Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HandleError(func(http.ResponseWriter, *http.Request) error { return tt.err })
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, rec.Code)
			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.message, body.ErrMsg)
			assert.Equal(t, tt.code, body.ErrMsgCode)
		})
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var v struct {
		Label string `json:"label"`
	}
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"label":"x","extra":1}`))
	err := DecodeJSON(req, &v)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindValidation, http.StatusBadRequest},
		{domain.KindAuthorization, http.StatusForbidden},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindLiquidity, http.StatusConflict},
		{domain.KindCircuitTripped, http.StatusLocked},
		{domain.KindStalePrice, http.StatusServiceUnavailable},
		{domain.KindInvariant, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.kind))
		})
	}
}

func TestWriteError_WrappedAndInfrastructure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec := httptest.NewRecorder()
	writeError(rec, req, fmt.Errorf("settlement.Settle: %w", domain.Tripped("breaker open", "state", "TRIPPED")))
	assert.Equal(t, http.StatusLocked, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "CIRCUIT_BREAKER_TRIPPED", body.Error.Kind)
	assert.Equal(t, "TRIPPED", body.Error.Fields["state"])

	rec = httptest.NewRecorder()
	writeError(rec, req, errors.New("disk I/O error at /var/lib/ert.db"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/var/lib")
}

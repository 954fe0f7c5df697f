package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&shared.NotFoundError{Entity: "sale", ID: 1}, http.StatusNotFound},
		{shared.Invalid("amount must be positive"), http.StatusBadRequest},
		{&shared.InvalidTransitionError{Entity: "quotation", From: "draft", To: "accepted"}, http.StatusConflict},
		{fmt.Errorf("wrap: %w", shared.ErrConflict), http.StatusConflict},
		{&shared.OverAllocationError{Requested: decimal.NewFromInt(50), Available: decimal.Zero, Limit: shared.LimitOrderBalance}, http.StatusUnprocessableEntity},
		{&shared.ModificationNotAllowedError{Entity: "sale", ID: 1, Status: "cancelled"}, http.StatusUnprocessableEntity},
		{&shared.DeletionBlockedError{Entity: "sale", ID: 1, Reason: "payments exist"}, http.StatusUnprocessableEntity},
		{&shared.BlockedCounterpartyError{Entity: "customer", ID: 1, Status: "blocked"}, http.StatusForbidden},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Notes string `json:"notes"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"x","paid_amount":"10"}`))
	err := DecodeJSON(req, &target)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"mrtcore/core"
	"mrtcore/native/common"
	"mrtcore/native/escrow"
	"mrtcore/native/oracle"
	"mrtcore/native/royalty"
	"mrtcore/native/settlement"
)

func TestClassifyErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    int
		message string
	}{
		{common.ErrModulePaused, http.StatusServiceUnavailable, codeModulePaused, "module_paused"},
		{settlement.ErrNotExecutor, http.StatusForbidden, codeForbidden, "forbidden"},
		{core.ErrNotAdmin, http.StatusForbidden, codeForbidden, "forbidden"},
		{royalty.ErrSplitNotFound, http.StatusNotFound, codeNotFound, "not_found"},
		{escrow.ErrTooEarly, http.StatusConflict, codeConflict, "conflict"},
		{settlement.ErrInsufficientCustody, http.StatusConflict, codeInsufficientFunds, "insufficient_funds"},
		{oracle.ErrPriceUnavailable, http.StatusNotFound, codePriceUnavailable, "price_unavailable"},
		{oracle.ErrCircuitBreaker, http.StatusUnprocessableEntity, codeQuoteRejected, "quote_rejected"},
		{settlement.ErrInvalidSchedule, http.StatusBadRequest, codeInvalidParams, "invalid_params"},
		{errors.New("something else"), http.StatusInternalServerError, codeServerError, "internal error"},
	}
	for _, tc := range cases {
		status, code, message := classifyError(tc.err)
		if status != tc.status || code != tc.code || message != tc.message {
			t.Fatalf("classify(%v) = (%d, %d, %q), want (%d, %d, %q)",
				tc.err, status, code, message, tc.status, tc.code, tc.message)
		}
	}
}

func TestClassifyErrorSeesWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("distribute: %w", royalty.ErrSplitInactive)
	status, code, message := classifyError(wrapped)
	if status != http.StatusConflict || code != codeConflict || message != "conflict" {
		t.Fatalf("wrapped error classified as (%d, %d, %q)", status, code, message)
	}
}

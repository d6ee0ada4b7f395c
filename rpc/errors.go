package rpc

import (
	"errors"
	"net/http"

	"mrtcore/core"
	"mrtcore/core/state"
	"mrtcore/native/automation"
	"mrtcore/native/common"
	"mrtcore/native/escrow"
	"mrtcore/native/oracle"
	"mrtcore/native/royalty"
	"mrtcore/native/settlement"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Module error codes shared by every handler file.
const (
	codeForbidden         = -32021
	codeNotFound          = -32022
	codeConflict          = -32023
	codeModulePaused      = -32024
	codePriceUnavailable  = -32025
	codeQuoteRejected     = -32026
	codeInsufficientFunds = -32027
)

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyError maps an engine error to the HTTP status, JSON-RPC code and
// short message the response carries. Unrecognized errors fall through to a
// generic server error.
func classifyError(err error) (int, int, string) {
	switch {
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, codeModulePaused, "module_paused"
	case errorIsAny(err,
		settlement.ErrNotExecutor,
		settlement.ErrNotAdmin,
		settlement.ErrNotInitiator,
		royalty.ErrNotController,
		automation.ErrNotController,
		automation.ErrNotExecutor,
		oracle.ErrNotAdmin,
		oracle.ErrUnauthorizedSource,
		core.ErrNotAdmin,
	):
		return http.StatusForbidden, codeForbidden, "forbidden"
	case errorIsAny(err,
		settlement.ErrBatchNotFound,
		royalty.ErrSplitNotFound,
		escrow.ErrTradeNotFound,
		automation.ErrRuleNotFound,
		oracle.ErrSourceNotFound,
		oracle.ErrSampleNotFound,
	):
		return http.StatusNotFound, codeNotFound, "not_found"
	case errors.Is(err, oracle.ErrPriceUnavailable):
		return http.StatusNotFound, codePriceUnavailable, "price_unavailable"
	case errorIsAny(err,
		oracle.ErrCircuitBreaker,
		oracle.ErrInsufficientSources,
		oracle.ErrDeviationTooHigh,
	):
		return http.StatusUnprocessableEntity, codeQuoteRejected, "quote_rejected"
	case errorIsAny(err,
		settlement.ErrInsufficientCustody,
		settlement.ErrRefundFailed,
		escrow.ErrPaymentFailed,
		automation.ErrFeeUnpaid,
		state.ErrInsufficientBalance,
		core.ErrInsufficientFees,
	):
		return http.StatusConflict, codeInsufficientFunds, "insufficient_funds"
	case errorIsAny(err,
		settlement.ErrNotPending,
		settlement.ErrTooEarly,
		settlement.ErrExpired,
		settlement.ErrCancelWindowClosed,
		escrow.ErrTooEarly,
		escrow.ErrTradeExists,
		royalty.ErrAlreadyExists,
		royalty.ErrSplitInactive,
		automation.ErrRuleInactive,
		oracle.ErrSourceExists,
	):
		return http.StatusConflict, codeConflict, "conflict"
	case errorIsAny(err,
		settlement.ErrInvalidKind,
		settlement.ErrInvalidRecipients,
		settlement.ErrInvalidAmount,
		settlement.ErrInvalidSchedule,
		settlement.ErrInvalidInterval,
		settlement.ErrUnsupportedToken,
		royalty.ErrBadShares,
		royalty.ErrInvalidContent,
		royalty.ErrInvalidRevenue,
		escrow.ErrInvalidParty,
		escrow.ErrInvalidAsset,
		escrow.ErrInvalidAmount,
		escrow.ErrInvalidPrice,
		escrow.ErrUnsupportedToken,
		automation.ErrInvalidTrigger,
		automation.ErrGasBudgetTooHigh,
		automation.ErrFeeRequired,
		oracle.ErrInvalidSymbol,
		oracle.ErrInvalidPrice,
		oracle.ErrInvalidConfidence,
		oracle.ErrInvalidWeight,
		oracle.ErrInvalidThreshold,
		oracle.ErrBatchTooLarge,
		oracle.ErrBatchLengthMismatch,
		core.ErrUnknownModule,
		core.ErrUnknownRole,
	):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	default:
		return http.StatusInternalServerError, codeServerError, "internal error"
	}
}

// writeModuleError renders an engine error as a JSON-RPC error response,
// keeping the raw error string in the data field.
func writeModuleError(w http.ResponseWriter, id interface{}, err error) {
	status, code, message := classifyError(err)
	writeError(w, status, id, code, message, err.Error())
}

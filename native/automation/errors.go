package automation

import "errors"

var (
	// ErrInvalidTrigger is returned when the trigger kind discriminator is
	// unknown.
	ErrInvalidTrigger = errors.New("automation: unknown trigger kind")
	// ErrGasBudgetTooHigh is returned when the declared gas budget exceeds
	// the configured maximum.
	ErrGasBudgetTooHigh = errors.New("automation: gas budget exceeds limit")
	// ErrFeeRequired is returned when the configured rule fee is zero. The
	// rule book only admits prepaid work.
	ErrFeeRequired = errors.New("automation: execution fee must be nonzero")
	// ErrFeeUnpaid is returned when the creator cannot cover the execution
	// fee prepayment.
	ErrFeeUnpaid = errors.New("automation: execution fee prepayment failed")
	// ErrRuleNotFound is returned when the rule id is unknown.
	ErrRuleNotFound = errors.New("automation: rule not found")
	// ErrRuleInactive is returned when recording an execution against a
	// deactivated rule.
	ErrRuleInactive = errors.New("automation: rule is inactive")
	// ErrNotController is returned when neither the creator nor the admin
	// toggles a rule.
	ErrNotController = errors.New("automation: caller may not modify this rule")
	// ErrNotExecutor is returned when a caller without the executor role
	// records an execution.
	ErrNotExecutor = errors.New("automation: caller lacks executor role")

	errNilState = errors.New("automation engine: state not configured")
)

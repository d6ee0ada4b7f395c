package settlement

import "errors"

var (
	// ErrNotExecutor is returned when a caller without the executor role
	// attempts to run a batch.
	ErrNotExecutor = errors.New("settlement: caller is not an authorized executor")
	// ErrNotAdmin is returned when a caller without the admin role attempts
	// an administrative operation.
	ErrNotAdmin = errors.New("settlement: caller is not the admin")
	// ErrNotInitiator is returned when someone other than the batch creator
	// attempts to cancel it.
	ErrNotInitiator = errors.New("settlement: caller did not create the batch")
	// ErrBatchNotFound is returned when the referenced batch id is unknown.
	ErrBatchNotFound = errors.New("settlement: batch not found")
	// ErrInvalidKind is returned when the batch kind is not a known value.
	ErrInvalidKind = errors.New("settlement: invalid batch kind")
	// ErrInvalidRecipients is returned when the recipient and amount arrays
	// are empty or of different lengths.
	ErrInvalidRecipients = errors.New("settlement: recipients and amounts must be non-empty and equal length")
	// ErrInvalidAmount is returned when any amount in the batch is not
	// positive.
	ErrInvalidAmount = errors.New("settlement: amounts must be positive")
	// ErrInvalidSchedule is returned when the execution time is in the past
	// or the deadline does not follow it.
	ErrInvalidSchedule = errors.New("settlement: deadline must follow a non-past execution time")
	// ErrInvalidInterval is returned when a recurring batch carries a
	// non-positive interval.
	ErrInvalidInterval = errors.New("settlement: recurring interval must be positive")
	// ErrUnsupportedToken is returned when the batch token is not in the
	// supported set.
	ErrUnsupportedToken = errors.New("settlement: token not supported")
	// ErrInsufficientCustody is returned when the initiator cannot cover the
	// batch deposit or the execution fee.
	ErrInsufficientCustody = errors.New("settlement: insufficient funds for custody deposit")
	// ErrNotPending is returned when a batch is not in the status the
	// operation requires.
	ErrNotPending = errors.New("settlement: batch is not pending")
	// ErrTooEarly is returned when a batch is executed before its execution
	// time.
	ErrTooEarly = errors.New("settlement: batch not yet executable")
	// ErrExpired is returned when a batch is executed past its deadline.
	ErrExpired = errors.New("settlement: batch deadline passed")
	// ErrCancelWindowClosed is returned when the initiator cancels at or
	// after the execution time.
	ErrCancelWindowClosed = errors.New("settlement: cancel window closed")
	// ErrRefundFailed is returned when the refund of a failed batch cannot
	// be applied. It aborts the call so an admin can force-cancel.
	ErrRefundFailed = errors.New("settlement: refund transfer failed")

	errNilState = errors.New("settlement engine: state not configured")
)

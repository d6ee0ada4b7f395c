package oracle

import "errors"

var (
	// ErrUnauthorizedSource is returned when the caller is not an active,
	// authorized data source.
	ErrUnauthorizedSource = errors.New("oracle: source not authorized")
	// ErrNotAdmin is returned when a source management call lacks the admin
	// role.
	ErrNotAdmin = errors.New("oracle: admin role required")
	// ErrSourceExists is returned when authorizing an address that is
	// already an active source.
	ErrSourceExists = errors.New("oracle: source already authorized")
	// ErrSourceNotFound is returned when the referenced source was never
	// authorized.
	ErrSourceNotFound = errors.New("oracle: source not found")
	// ErrInvalidSymbol rejects empty or oversized symbols.
	ErrInvalidSymbol = errors.New("oracle: invalid symbol")
	// ErrInvalidPrice rejects non-positive prices.
	ErrInvalidPrice = errors.New("oracle: price must be positive")
	// ErrInvalidConfidence rejects confidence values outside [50, 100].
	ErrInvalidConfidence = errors.New("oracle: confidence out of range")
	// ErrInvalidWeight rejects source weights outside [0, 100].
	ErrInvalidWeight = errors.New("oracle: weight out of range")
	// ErrInvalidThreshold rejects circuit breaker thresholds of zero or
	// above 100%.
	ErrInvalidThreshold = errors.New("oracle: threshold out of range")
	// ErrBatchTooLarge bounds the work performed by a single batch update.
	ErrBatchTooLarge = errors.New("oracle: batch exceeds size limit")
	// ErrBatchLengthMismatch is returned when the batch arrays disagree in
	// length.
	ErrBatchLengthMismatch = errors.New("oracle: batch arrays must have equal length")
	// ErrCircuitBreaker is returned when a sample deviates too far from the
	// previous aggregated price. The sample is not stored.
	ErrCircuitBreaker = errors.New("oracle: circuit breaker tripped")
	// ErrInsufficientSources reports that fewer than the minimum number of
	// valid samples were available. Stored samples are unaffected.
	ErrInsufficientSources = errors.New("oracle: insufficient sources")
	// ErrDeviationTooHigh reports that the valid samples disagree beyond the
	// deviation cap. Stored samples are unaffected.
	ErrDeviationTooHigh = errors.New("oracle: deviation too high")
	// ErrPriceUnavailable is returned by reads when no fresh aggregated
	// quote exists for the symbol.
	ErrPriceUnavailable = errors.New("oracle: price unavailable")
	// ErrSampleNotFound is returned when suspending a sample that does not
	// exist.
	ErrSampleNotFound = errors.New("oracle: sample not found")

	errNilState = errors.New("oracle engine: state not configured")
)

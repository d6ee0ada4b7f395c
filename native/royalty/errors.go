package royalty

import "errors"

var (
	// ErrBadShares is returned when the beneficiary and share tables are
	// empty, of different lengths, carry a zero share, or do not sum to
	// 10000 basis points.
	ErrBadShares = errors.New("royalty: shares must be non-empty, positive, and sum to 10000 bps")
	// ErrAlreadyExists is returned when someone other than the original
	// creator re-registers a content id.
	ErrAlreadyExists = errors.New("royalty: content already registered by another creator")
	// ErrSplitNotFound is returned when the content id is unknown.
	ErrSplitNotFound = errors.New("royalty: split not found")
	// ErrSplitInactive is returned when distributing to a deactivated split.
	ErrSplitInactive = errors.New("royalty: split is inactive")
	// ErrInvalidContent is returned when the content id is empty.
	ErrInvalidContent = errors.New("royalty: content id must not be empty")
	// ErrInvalidRevenue is returned when the distributed revenue is not
	// positive.
	ErrInvalidRevenue = errors.New("royalty: revenue must be positive")
	// ErrNotController is returned when neither the creator nor the admin
	// toggles a split.
	ErrNotController = errors.New("royalty: caller may not modify this split")

	errNilState     = errors.New("royalty engine: state not configured")
	errNilScheduler = errors.New("royalty engine: scheduler not configured")
)

package escrow

import "errors"

var (
	// ErrTradeNotFound is returned when no live record matches the digest.
	// Settled trades clear their record, so their digest reports not found
	// again.
	ErrTradeNotFound = errors.New("escrow: trade not found")
	// ErrTradeExists is returned when a digest is already occupied by a
	// trade with a different payment token or escrow flag.
	ErrTradeExists = errors.New("escrow: trade digest already occupied with a different definition")
	// ErrInvalidParty is returned when the buyer or seller address is the
	// zero address, or when both are the same account.
	ErrInvalidParty = errors.New("escrow: buyer and seller must be distinct non-zero accounts")
	// ErrInvalidAsset is returned when the traded asset id is empty.
	ErrInvalidAsset = errors.New("escrow: asset id must not be empty")
	// ErrInvalidAmount is returned when the traded amount is not positive.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrInvalidPrice is returned when the unit price is not positive.
	ErrInvalidPrice = errors.New("escrow: price must be positive")
	// ErrUnsupportedToken is returned when the payment token is not
	// registered.
	ErrUnsupportedToken = errors.New("escrow: payment token not registered")
	// ErrTooEarly is returned when settling before the cooling-off window
	// ends.
	ErrTooEarly = errors.New("escrow: cooling-off window still open")
	// ErrPaymentFailed is returned when a settlement transfer cannot be
	// applied. The caller reverts, leaving the trade record live.
	ErrPaymentFailed = errors.New("escrow: settlement transfer failed")

	errNilState = errors.New("escrow engine: state not configured")
)

package royalty

import (
	"math/big"
	"strings"
)

// BpsDenominator is the share scale of a split table.
const BpsDenominator uint32 = 10_000

// Split is the royalty table of one content identifier: an ordered list of
// beneficiaries and their shares in basis points, always summing to 10000.
type Split struct {
	ContentID        string
	Creator          [20]byte
	Beneficiaries    [][20]byte
	Bps              []uint32
	Active           bool
	CreatedAt        int64
	UpdatedAt        int64
	TotalRevenue     *big.Int
	TotalDistributed *big.Int
	Distributions    uint64
}

// Clone returns a deep copy of the split.
func (s *Split) Clone() *Split {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Beneficiaries = append([][20]byte(nil), s.Beneficiaries...)
	clone.Bps = append([]uint32(nil), s.Bps...)
	clone.TotalRevenue = big.NewInt(0)
	clone.TotalDistributed = big.NewInt(0)
	if s.TotalRevenue != nil {
		clone.TotalRevenue = new(big.Int).Set(s.TotalRevenue)
	}
	if s.TotalDistributed != nil {
		clone.TotalDistributed = new(big.Int).Set(s.TotalDistributed)
	}
	return &clone
}

// ValidateShares checks a beneficiary and share table pair for structural
// soundness. Lengths must match and be non-zero, and the positive shares
// must sum to the full 10000 bps.
func ValidateShares(beneficiaries [][20]byte, bps []uint32) error {
	if len(beneficiaries) == 0 || len(beneficiaries) != len(bps) {
		return ErrBadShares
	}
	var sum uint64
	for _, share := range bps {
		if share == 0 {
			return ErrBadShares
		}
		sum += uint64(share)
	}
	if sum != uint64(BpsDenominator) {
		return ErrBadShares
	}
	return nil
}

// NormalizeContentID canonicalizes a content identifier.
func NormalizeContentID(contentID string) (string, error) {
	trimmed := strings.TrimSpace(contentID)
	if trimmed == "" {
		return "", ErrInvalidContent
	}
	return trimmed, nil
}

// SplitAmounts computes the per-beneficiary amounts for a revenue figure.
// Each share floors; the rounding residue goes to the first beneficiary so
// the amounts always sum to the revenue exactly.
func SplitAmounts(revenue *big.Int, bps []uint32) []*big.Int {
	amounts := make([]*big.Int, len(bps))
	distributed := new(big.Int)
	denominator := new(big.Int).SetUint64(uint64(BpsDenominator))
	for i, share := range bps {
		amount := new(big.Int).Mul(revenue, new(big.Int).SetUint64(uint64(share)))
		amount.Quo(amount, denominator)
		amounts[i] = amount
		distributed.Add(distributed, amount)
	}
	if len(amounts) > 0 {
		residue := new(big.Int).Sub(revenue, distributed)
		if residue.Sign() > 0 {
			amounts[0] = new(big.Int).Add(amounts[0], residue)
		}
	}
	return amounts
}

package types

import "math/big"

// Account is the read-side view of an address assembled from the state's
// per-token balance records. Tokens that were never credited are absent
// from the map and read as zero.
type Account struct {
	Balances map[string]*big.Int `json:"balances"`
}

// BalanceOf returns a copy of the account's balance for token, or zero when
// the token was never credited.
func (a *Account) BalanceOf(token string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[token]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

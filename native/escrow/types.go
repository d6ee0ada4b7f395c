package escrow

import (
	"encoding/binary"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SettlementDelay is the cooling-off window between creating a trade and
// being allowed to settle it.
const SettlementDelay int64 = 300

// EscrowedTrade is a single-leg trade held until its cooling-off window
// passes. Escrowed trades custody the full cost up front; non-escrow trades
// pull from the buyer at settlement time.
type EscrowedTrade struct {
	Hash           [32]byte
	Buyer          [20]byte
	Seller         [20]byte
	AssetID        string
	Amount         *big.Int
	Price          *big.Int
	PaymentToken   string
	SettlementTime int64
	IsEscrow       bool
	CreatedAt      int64
}

// Cost returns the total payment leg of the trade, amount times unit price.
func (t *EscrowedTrade) Cost() *big.Int {
	if t == nil || t.Amount == nil || t.Price == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(t.Amount, t.Price)
}

// Clone returns a deep copy of the trade record.
func (t *EscrowedTrade) Clone() *EscrowedTrade {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	}
	if t.Price != nil {
		clone.Price = new(big.Int).Set(t.Price)
	}
	return &clone
}

// NormalizeAssetID canonicalizes a traded asset identifier.
func NormalizeAssetID(assetID string) (string, error) {
	trimmed := strings.TrimSpace(assetID)
	if trimmed == "" {
		return "", ErrInvalidAsset
	}
	return trimmed, nil
}

// ComputeTradeHash derives the digest that keys a trade record. Creation
// time is part of the digest, so re-submitting the same order in a later
// second opens a fresh record.
func ComputeTradeHash(buyer, seller [20]byte, assetID string, amount, price *big.Int, creationTime int64) [32]byte {
	paddedAmount := make([]byte, 32)
	if amount != nil {
		amount.FillBytes(paddedAmount)
	}
	paddedPrice := make([]byte, 32)
	if price != nil {
		price.FillBytes(paddedPrice)
	}
	var createdAt [8]byte
	binary.BigEndian.PutUint64(createdAt[:], uint64(creationTime))
	return ethcrypto.Keccak256Hash(
		buyer[:],
		seller[:],
		[]byte(assetID),
		paddedAmount,
		paddedPrice,
		createdAt[:],
	)
}

package state

import (
	"fmt"
	"math/big"

	"mrtcore/native/escrow"
)

func escrowTradeKey(hash [32]byte) []byte {
	return append([]byte("escrow/trade/"), hash[:]...)
}

type storedEscrowedTrade struct {
	Hash           [32]byte
	Buyer          [20]byte
	Seller         [20]byte
	AssetID        string
	Amount         *big.Int
	Price          *big.Int
	PaymentToken   string
	SettlementTime *big.Int
	IsEscrow       bool
	CreatedAt      *big.Int
}

func newStoredEscrowedTrade(trade *escrow.EscrowedTrade) storedEscrowedTrade {
	stored := storedEscrowedTrade{
		Hash:           trade.Hash,
		Buyer:          trade.Buyer,
		Seller:         trade.Seller,
		AssetID:        trade.AssetID,
		Amount:         big.NewInt(0),
		Price:          big.NewInt(0),
		PaymentToken:   trade.PaymentToken,
		SettlementTime: big.NewInt(trade.SettlementTime),
		IsEscrow:       trade.IsEscrow,
		CreatedAt:      big.NewInt(trade.CreatedAt),
	}
	if trade.Amount != nil {
		stored.Amount = new(big.Int).Set(trade.Amount)
	}
	if trade.Price != nil {
		stored.Price = new(big.Int).Set(trade.Price)
	}
	return stored
}

func (s storedEscrowedTrade) toTrade() *escrow.EscrowedTrade {
	trade := &escrow.EscrowedTrade{
		Hash:         s.Hash,
		Buyer:        s.Buyer,
		Seller:       s.Seller,
		AssetID:      s.AssetID,
		Amount:       big.NewInt(0),
		Price:        big.NewInt(0),
		PaymentToken: s.PaymentToken,
		IsEscrow:     s.IsEscrow,
	}
	if s.Amount != nil {
		trade.Amount = new(big.Int).Set(s.Amount)
	}
	if s.Price != nil {
		trade.Price = new(big.Int).Set(s.Price)
	}
	if s.SettlementTime != nil {
		trade.SettlementTime = s.SettlementTime.Int64()
	}
	if s.CreatedAt != nil {
		trade.CreatedAt = s.CreatedAt.Int64()
	}
	return trade
}

// TradePut validates and persists a trade record under its digest.
func (s *CoreState) TradePut(trade *escrow.EscrowedTrade) error {
	if trade == nil {
		return fmt.Errorf("escrow trade: nil record")
	}
	var zeroHash [32]byte
	if trade.Hash == zeroHash {
		return fmt.Errorf("escrow trade: digest must be set")
	}
	return s.KVPut(escrowTradeKey(trade.Hash), newStoredEscrowedTrade(trade))
}

// TradeGet loads a live trade record by digest.
func (s *CoreState) TradeGet(hash [32]byte) (*escrow.EscrowedTrade, bool) {
	var stored storedEscrowedTrade
	ok, err := s.KVGet(escrowTradeKey(hash), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toTrade(), true
}

// TradeDelete clears a trade record, making its digest unknown again.
func (s *CoreState) TradeDelete(hash [32]byte) error {
	return s.KVDelete(escrowTradeKey(hash))
}

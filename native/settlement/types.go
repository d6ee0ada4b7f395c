package settlement

import (
	"bytes"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// BatchKind labels the payout work a batch carries.
type BatchKind uint8

const (
	KindRoyaltyDistribution BatchKind = iota
	KindTradeSettlement
	KindYieldDistribution
	KindLoanRepayment
	KindInsuranceClaim
)

// Valid reports whether the kind is a known value.
func (k BatchKind) Valid() bool {
	return k <= KindInsuranceClaim
}

func (k BatchKind) String() string {
	switch k {
	case KindRoyaltyDistribution:
		return "royalty_distribution"
	case KindTradeSettlement:
		return "trade_settlement"
	case KindYieldDistribution:
		return "yield_distribution"
	case KindLoanRepayment:
		return "loan_repayment"
	case KindInsuranceClaim:
		return "insurance_claim"
	default:
		return "unknown"
	}
}

// ParseBatchKind resolves the textual label of a batch kind.
func ParseBatchKind(label string) (BatchKind, error) {
	switch label {
	case "royalty_distribution":
		return KindRoyaltyDistribution, nil
	case "trade_settlement":
		return KindTradeSettlement, nil
	case "yield_distribution":
		return KindYieldDistribution, nil
	case "loan_repayment":
		return KindLoanRepayment, nil
	case "insurance_claim":
		return KindInsuranceClaim, nil
	default:
		return 0, fmt.Errorf("settlement: unknown batch kind %q", label)
	}
}

// BatchStatus tracks a batch through its lifecycle.
type BatchStatus uint8

const (
	StatusPending BatchStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s BatchStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PayoutBatch is the scheduler's atomic unit of payout work. Ids increase
// strictly and are never reused, including across cancellations.
type PayoutBatch struct {
	ID                uint64
	Kind              BatchKind
	Initiator         [20]byte
	Token             string
	Recipients        [][20]byte
	Amounts           []*big.Int
	TotalAmount       *big.Int
	ExecutionTime     int64
	Deadline          int64
	Status            BatchStatus
	DataHash          [32]byte
	Metadata          string
	IsRecurring       bool
	RecurringInterval int64
	NextExecution     int64
	ParentID          uint64
	CreatedAt         int64
	ExecutedAt        int64
}

// Clone returns a deep copy of the batch.
func (b *PayoutBatch) Clone() *PayoutBatch {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Recipients = append([][20]byte(nil), b.Recipients...)
	clone.Amounts = make([]*big.Int, len(b.Amounts))
	for i, amount := range b.Amounts {
		if amount != nil {
			clone.Amounts[i] = new(big.Int).Set(amount)
		} else {
			clone.Amounts[i] = big.NewInt(0)
		}
	}
	if b.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(b.TotalAmount)
	}
	return &clone
}

// ComputeDataHash derives the digest binding a batch to its recipient and
// amount tables.
func ComputeDataHash(recipients [][20]byte, amounts []*big.Int) [32]byte {
	var buf bytes.Buffer
	for i, recipient := range recipients {
		buf.Write(recipient[:])
		var amount *big.Int
		if i < len(amounts) {
			amount = amounts[i]
		}
		if amount == nil {
			amount = big.NewInt(0)
		}
		padded := make([]byte, 32)
		amount.FillBytes(padded)
		buf.Write(padded)
	}
	var hash [32]byte
	copy(hash[:], ethcrypto.Keccak256(buf.Bytes()))
	return hash
}

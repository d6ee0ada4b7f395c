package automation

import "fmt"

// Parameter names and defaults for the rule book.
const (
	ParamMaxGasLimit = "automation/maxGasLimit"
	ParamRuleFee     = "automation/ruleFee"

	DefaultMaxGasLimit uint64 = 500_000
	DefaultRuleFee     int64  = 1
)

// TriggerKind discriminates what class of off-chain condition a rule waits
// on. The core validates only the discriminator; the condition blob itself
// is opaque.
type TriggerKind uint8

const (
	TriggerPriceThreshold TriggerKind = iota + 1
	TriggerTimeSchedule
	TriggerRevenueAccrual
	TriggerCustom
)

// Valid reports whether the trigger kind is one the rule book accepts.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerPriceThreshold, TriggerTimeSchedule, TriggerRevenueAccrual, TriggerCustom:
		return true
	default:
		return false
	}
}

func (k TriggerKind) String() string {
	switch k {
	case TriggerPriceThreshold:
		return "price_threshold"
	case TriggerTimeSchedule:
		return "time_schedule"
	case TriggerRevenueAccrual:
		return "revenue_accrual"
	case TriggerCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseTriggerKind resolves the textual label of a trigger kind.
func ParseTriggerKind(label string) (TriggerKind, error) {
	switch label {
	case "price_threshold":
		return TriggerPriceThreshold, nil
	case "time_schedule":
		return TriggerTimeSchedule, nil
	case "revenue_accrual":
		return TriggerRevenueAccrual, nil
	case "custom":
		return TriggerCustom, nil
	default:
		return 0, fmt.Errorf("automation: unknown trigger kind %q", label)
	}
}

// Rule is a keeper work item. The core stores the condition and execution
// blobs verbatim and never interprets them; keepers translate them into
// concrete scheduler calls.
type Rule struct {
	ID             uint64
	Creator        [20]byte
	TriggerKind    TriggerKind
	Condition      []byte
	ExecutionData  []byte
	GasBudget      uint64
	Active         bool
	LastExecution  int64
	ExecutionCount uint64
	CreatedAt      int64
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Condition = append([]byte(nil), r.Condition...)
	clone.ExecutionData = append([]byte(nil), r.ExecutionData...)
	return &clone
}

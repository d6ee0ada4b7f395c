package state

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"mrtcore/native/settlement"
)

const settlementBatchSequence = "settlement/batch"

func settlementBatchKey(id uint64) []byte {
	return strconv.AppendUint([]byte("settlement/batch/"), id, 10)
}

func settlementPendingKey() []byte {
	return []byte("settlement/pending")
}

type storedPayoutBatch struct {
	ID                uint64
	Kind              uint8
	Initiator         [20]byte
	Token             string
	Recipients        [][20]byte
	Amounts           []*big.Int
	TotalAmount       *big.Int
	ExecutionTime     *big.Int
	Deadline          *big.Int
	Status            uint8
	DataHash          [32]byte
	Metadata          string
	IsRecurring       bool
	RecurringInterval *big.Int
	NextExecution     *big.Int
	ParentID          uint64
	CreatedAt         *big.Int
	ExecutedAt        *big.Int
}

func newStoredPayoutBatch(batch *settlement.PayoutBatch) storedPayoutBatch {
	stored := storedPayoutBatch{
		ID:                batch.ID,
		Kind:              uint8(batch.Kind),
		Initiator:         batch.Initiator,
		Token:             batch.Token,
		Recipients:        append([][20]byte(nil), batch.Recipients...),
		Amounts:           make([]*big.Int, len(batch.Amounts)),
		TotalAmount:       big.NewInt(0),
		ExecutionTime:     big.NewInt(batch.ExecutionTime),
		Deadline:          big.NewInt(batch.Deadline),
		Status:            uint8(batch.Status),
		DataHash:          batch.DataHash,
		Metadata:          batch.Metadata,
		IsRecurring:       batch.IsRecurring,
		RecurringInterval: big.NewInt(batch.RecurringInterval),
		NextExecution:     big.NewInt(batch.NextExecution),
		ParentID:          batch.ParentID,
		CreatedAt:         big.NewInt(batch.CreatedAt),
		ExecutedAt:        big.NewInt(batch.ExecutedAt),
	}
	for i, amount := range batch.Amounts {
		if amount != nil {
			stored.Amounts[i] = new(big.Int).Set(amount)
		} else {
			stored.Amounts[i] = big.NewInt(0)
		}
	}
	if batch.TotalAmount != nil {
		stored.TotalAmount = new(big.Int).Set(batch.TotalAmount)
	}
	return stored
}

func (s storedPayoutBatch) toBatch() *settlement.PayoutBatch {
	batch := &settlement.PayoutBatch{
		ID:          s.ID,
		Kind:        settlement.BatchKind(s.Kind),
		Initiator:   s.Initiator,
		Token:       s.Token,
		Recipients:  append([][20]byte(nil), s.Recipients...),
		Amounts:     make([]*big.Int, len(s.Amounts)),
		TotalAmount: big.NewInt(0),
		Status:      settlement.BatchStatus(s.Status),
		DataHash:    s.DataHash,
		Metadata:    s.Metadata,
		IsRecurring: s.IsRecurring,
		ParentID:    s.ParentID,
	}
	for i, amount := range s.Amounts {
		if amount != nil {
			batch.Amounts[i] = new(big.Int).Set(amount)
		} else {
			batch.Amounts[i] = big.NewInt(0)
		}
	}
	if s.TotalAmount != nil {
		batch.TotalAmount = new(big.Int).Set(s.TotalAmount)
	}
	if s.ExecutionTime != nil {
		batch.ExecutionTime = s.ExecutionTime.Int64()
	}
	if s.Deadline != nil {
		batch.Deadline = s.Deadline.Int64()
	}
	if s.RecurringInterval != nil {
		batch.RecurringInterval = s.RecurringInterval.Int64()
	}
	if s.NextExecution != nil {
		batch.NextExecution = s.NextExecution.Int64()
	}
	if s.CreatedAt != nil {
		batch.CreatedAt = s.CreatedAt.Int64()
	}
	if s.ExecutedAt != nil {
		batch.ExecutedAt = s.ExecutedAt.Int64()
	}
	return batch
}

// BatchPut validates and persists a payout batch record.
func (s *CoreState) BatchPut(batch *settlement.PayoutBatch) error {
	if batch == nil {
		return fmt.Errorf("settlement batch: nil record")
	}
	if batch.ID == 0 {
		return fmt.Errorf("settlement batch: id must be set")
	}
	if strings.TrimSpace(batch.Token) == "" {
		return fmt.Errorf("settlement batch: token must not be empty")
	}
	if len(batch.Recipients) != len(batch.Amounts) {
		return fmt.Errorf("settlement batch: recipients and amounts length mismatch")
	}
	return s.KVPut(settlementBatchKey(batch.ID), newStoredPayoutBatch(batch))
}

// BatchGet loads a payout batch by id.
func (s *CoreState) BatchGet(id uint64) (*settlement.PayoutBatch, bool) {
	var stored storedPayoutBatch
	ok, err := s.KVGet(settlementBatchKey(id), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toBatch(), true
}

// BatchNextID allocates the next monotonic batch id. Ids are never reused.
func (s *CoreState) BatchNextID() (uint64, error) {
	return s.NextSequence(settlementBatchSequence)
}

func (s *CoreState) loadPendingBatches() ([]uint64, error) {
	var ids []uint64
	ok, err := s.KVGet(settlementPendingKey(), &ids)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []uint64{}, nil
	}
	return ids, nil
}

// BatchPendingAdd records a batch id in the pending index. The index stays
// sorted so keepers observe a deterministic order.
func (s *CoreState) BatchPendingAdd(id uint64) error {
	ids, err := s.loadPendingBatches()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.KVPut(settlementPendingKey(), ids)
}

// BatchPendingRemove drops a batch id from the pending index.
func (s *CoreState) BatchPendingRemove(id uint64) error {
	ids, err := s.loadPendingBatches()
	if err != nil {
		return err
	}
	filtered := make([]uint64, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(ids) {
		return nil
	}
	return s.KVPut(settlementPendingKey(), filtered)
}

// BatchPendingList returns the ids of all batches awaiting execution in
// ascending order.
func (s *CoreState) BatchPendingList() ([]uint64, error) {
	return s.loadPendingBatches()
}

// CustodyVault returns the address batch deposits and escrowed funds are
// held under.
func (s *CoreState) CustodyVault() [20]byte {
	return CustodyVaultAddress()
}

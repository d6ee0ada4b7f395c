package state

import (
	"fmt"
	"math/big"
	"strings"

	"mrtcore/native/royalty"
)

func royaltySplitKey(contentID string) []byte {
	return append([]byte("royalty/split/"), contentID...)
}

func royaltySplitIndexKey() []byte {
	return []byte("royalty/split-index")
}

type storedRoyaltySplit struct {
	ContentID        string
	Creator          [20]byte
	Beneficiaries    [][20]byte
	Bps              []uint32
	Active           bool
	CreatedAt        *big.Int
	UpdatedAt        *big.Int
	TotalRevenue     *big.Int
	TotalDistributed *big.Int
	Distributions    uint64
}

func newStoredRoyaltySplit(split *royalty.Split) storedRoyaltySplit {
	stored := storedRoyaltySplit{
		ContentID:        split.ContentID,
		Creator:          split.Creator,
		Beneficiaries:    append([][20]byte(nil), split.Beneficiaries...),
		Bps:              append([]uint32(nil), split.Bps...),
		Active:           split.Active,
		CreatedAt:        big.NewInt(split.CreatedAt),
		UpdatedAt:        big.NewInt(split.UpdatedAt),
		TotalRevenue:     big.NewInt(0),
		TotalDistributed: big.NewInt(0),
		Distributions:    split.Distributions,
	}
	if split.TotalRevenue != nil {
		stored.TotalRevenue = new(big.Int).Set(split.TotalRevenue)
	}
	if split.TotalDistributed != nil {
		stored.TotalDistributed = new(big.Int).Set(split.TotalDistributed)
	}
	return stored
}

func (s storedRoyaltySplit) toSplit() *royalty.Split {
	split := &royalty.Split{
		ContentID:        s.ContentID,
		Creator:          s.Creator,
		Beneficiaries:    append([][20]byte(nil), s.Beneficiaries...),
		Bps:              append([]uint32(nil), s.Bps...),
		Active:           s.Active,
		TotalRevenue:     big.NewInt(0),
		TotalDistributed: big.NewInt(0),
		Distributions:    s.Distributions,
	}
	if s.CreatedAt != nil {
		split.CreatedAt = s.CreatedAt.Int64()
	}
	if s.UpdatedAt != nil {
		split.UpdatedAt = s.UpdatedAt.Int64()
	}
	if s.TotalRevenue != nil {
		split.TotalRevenue = new(big.Int).Set(s.TotalRevenue)
	}
	if s.TotalDistributed != nil {
		split.TotalDistributed = new(big.Int).Set(s.TotalDistributed)
	}
	return split
}

// RoyaltySplitPut validates and persists a royalty split record, keeping the
// content index current.
func (s *CoreState) RoyaltySplitPut(split *royalty.Split) error {
	if split == nil {
		return fmt.Errorf("royalty split: nil record")
	}
	if strings.TrimSpace(split.ContentID) == "" {
		return fmt.Errorf("royalty split: content id must not be empty")
	}
	if len(split.Beneficiaries) != len(split.Bps) {
		return fmt.Errorf("royalty split: beneficiaries and shares must align")
	}
	if err := s.KVPut(royaltySplitKey(split.ContentID), newStoredRoyaltySplit(split)); err != nil {
		return err
	}
	return s.KVAppend(royaltySplitIndexKey(), []byte(split.ContentID))
}

// RoyaltySplitGet loads a royalty split record by content id.
func (s *CoreState) RoyaltySplitGet(contentID string) (*royalty.Split, bool) {
	var stored storedRoyaltySplit
	ok, err := s.KVGet(royaltySplitKey(contentID), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toSplit(), true
}

// RoyaltySplitList returns every registered content id in insertion order.
func (s *CoreState) RoyaltySplitList() ([]string, error) {
	var raw [][]byte
	if err := s.KVGetList(royaltySplitIndexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		out = append(out, string(entry))
	}
	return out, nil
}

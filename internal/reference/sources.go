package reference

import (
	"context"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Source ids served from the reference dataset.
const (
	CensusSourceID             = "census"
	HistoricalConflictSourceID = "conflict-reference"
)

// CensusSource serves the census baseline as a collaborator.
type CensusSource struct {
	data *Dataset
}

func NewCensusSource(d *Dataset) *CensusSource {
	return &CensusSource{data: d}
}

func (s *CensusSource) ID() string                { return CensusSourceID }
func (s *CensusSource) Category() domain.Category { return domain.CategoryCensus }

func (s *CensusSource) Fetch(ctx context.Context) (domain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return domain.Payload{}, err
	}
	return domain.CensusPayload(s.data.Census()), nil
}

// HistoricalConflictSource serves the recorded incidents as a conflict feed.
// It stands in for the archive when no database is configured.
type HistoricalConflictSource struct {
	data *Dataset
}

func NewHistoricalConflictSource(d *Dataset) *HistoricalConflictSource {
	return &HistoricalConflictSource{data: d}
}

func (s *HistoricalConflictSource) ID() string                { return HistoricalConflictSourceID }
func (s *HistoricalConflictSource) Category() domain.Category { return domain.CategoryConflict }

func (s *HistoricalConflictSource) Fetch(ctx context.Context) (domain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return domain.Payload{}, err
	}
	return domain.ConflictPayload(s.data.HistoricalConflicts()), nil
}

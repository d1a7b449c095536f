// Package change compares consecutive snapshots and emits change events.
package change

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Snapshot is the complete output of one cycle.
type Snapshot struct {
	Herds []domain.HerdEstimate `json:"herds"`
	Zones []domain.ConflictZone `json:"zones"`
	News  []domain.Article      `json:"news"`
}

// Empty reports whether the snapshot holds nothing.
func (s Snapshot) Empty() bool {
	return len(s.Herds) == 0 && len(s.Zones) == 0 && len(s.News) == 0
}

// Params are the detection thresholds.
type Params struct {
	RapidMovementKmPerDay float64
	EscalationDelta       int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{RapidMovementKmPerDay: 12, EscalationDelta: 5}
}

// Diff returns the changes from prev to curr, ordered by category, kind and
// subject. Diff of a snapshot with itself is empty.
func Diff(prev, curr Snapshot, p Params) []domain.ChangeEvent {
	var out []domain.ChangeEvent
	out = append(out, diffHerds(prev.Herds, curr.Herds, p)...)
	out = append(out, diffZones(prev.Zones, curr.Zones, p)...)
	out = append(out, diffNews(prev.News, curr.News)...)

	slices.SortFunc(out, func(a, b domain.ChangeEvent) int {
		return cmp.Or(
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.SubjectID, b.SubjectID),
		)
	})
	return out
}

func diffHerds(prev, curr []domain.HerdEstimate, p Params) []domain.ChangeEvent {
	before := make(map[string]domain.HerdEstimate, len(prev))
	for _, h := range prev {
		before[h.ID] = h
	}

	var out []domain.ChangeEvent
	for _, h := range curr {
		old, seen := before[h.ID]
		if !seen {
			out = append(out, domain.ChangeEvent{
				Category:  domain.SubjectHerd,
				Kind:      domain.ChangeNew,
				SubjectID: h.ID,
				Summary:   fmt.Sprintf("%s now tracked (%d head)", h.Name, h.HeadCount),
			})
		}
		if h.SpeedKmPerDay < p.RapidMovementKmPerDay {
			continue
		}
		if seen && old.SpeedKmPerDay >= p.RapidMovementKmPerDay {
			continue
		}
		out = append(out, domain.ChangeEvent{
			Category:  domain.SubjectHerd,
			Kind:      domain.ChangeRapidMovement,
			SubjectID: h.ID,
			Delta:     h.SpeedKmPerDay - old.SpeedKmPerDay,
			Summary:   fmt.Sprintf("%s moving %.1f km/day %s", h.Name, h.SpeedKmPerDay, h.Trend),
		})
	}
	return out
}

func diffZones(prev, curr []domain.ConflictZone, p Params) []domain.ChangeEvent {
	before := make(map[string]domain.ConflictZone, len(prev))
	for _, z := range prev {
		before[z.ID] = z
	}

	var out []domain.ChangeEvent
	for _, z := range curr {
		old, seen := before[z.ID]
		switch {
		case !seen:
			out = append(out, domain.ChangeEvent{
				Category:  domain.SubjectZone,
				Kind:      domain.ChangeNew,
				SubjectID: z.ID,
				Delta:     float64(z.RiskScore),
				Summary:   fmt.Sprintf("%s scored %d (%s)", z.Name, z.RiskScore, z.RiskLevel),
			})
		case z.RiskScore-old.RiskScore > p.EscalationDelta:
			out = append(out, domain.ChangeEvent{
				Category:  domain.SubjectZone,
				Kind:      domain.ChangeEscalated,
				SubjectID: z.ID,
				Delta:     float64(z.RiskScore - old.RiskScore),
				Summary:   fmt.Sprintf("%s escalated %d -> %d (%s)", z.Name, old.RiskScore, z.RiskScore, z.RiskLevel),
			})
		}
	}
	return out
}

func diffNews(prev, curr []domain.Article) []domain.ChangeEvent {
	before := make(map[string]bool, len(prev))
	for _, a := range prev {
		before[a.ID] = true
	}

	var out []domain.ChangeEvent
	for _, a := range curr {
		if before[a.ID] {
			continue
		}
		out = append(out, domain.ChangeEvent{
			Category:  domain.SubjectNews,
			Kind:      domain.ChangeNew,
			SubjectID: a.ID,
			Delta:     a.Relevance,
			Summary:   a.Title,
		})
	}
	return out
}

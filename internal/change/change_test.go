package change

import (
	"testing"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() Snapshot {
	return Snapshot{
		Herds: []domain.HerdEstimate{
			{ID: "A", Name: "Herd Alfa", SpeedKmPerDay: 8},
			{ID: "E", Name: "Herd Echo", SpeedKmPerDay: 14, Trend: "N"},
		},
		Zones: []domain.ConflictZone{
			{ID: "cell_6.5_33", Name: "Pibor-Murle Corridor", RiskScore: 90, RiskLevel: domain.RiskCritical, Escalated: true},
			{ID: "cell_9.5_31.5", Name: "Malakal-White Nile", RiskScore: 50, RiskLevel: domain.RiskMedium},
		},
		News: []domain.Article{{ID: "n1", Title: "Cattle raid in Pibor", Relevance: 0.67}},
	}
}

func TestDiff_SelfIsEmpty(t *testing.T) {
	s := snapshot()
	assert.Empty(t, Diff(s, s, DefaultParams()))
	assert.Empty(t, Diff(Snapshot{}, Snapshot{}, DefaultParams()))
}

func TestDiff_FromEmpty(t *testing.T) {
	events := Diff(Snapshot{}, snapshot(), DefaultParams())

	type key struct {
		category string
		kind     domain.ChangeKind
		subject  string
	}
	var got []key
	for _, e := range events {
		got = append(got, key{e.Category, e.Kind, e.SubjectID})
	}
	assert.Equal(t, []key{
		{"herd", domain.ChangeNew, "A"},
		{"herd", domain.ChangeNew, "E"},
		{"herd", domain.ChangeRapidMovement, "E"},
		{"news", domain.ChangeNew, "n1"},
		{"zone", domain.ChangeNew, "cell_6.5_33"},
		{"zone", domain.ChangeNew, "cell_9.5_31.5"},
	}, got)
}

func TestDiff_Escalation(t *testing.T) {
	prev := snapshot()
	curr := snapshot()
	curr.Zones[1].RiskScore = 62
	curr.Zones[1].RiskLevel = domain.RiskHigh
	curr.Zones[0].RiskScore = 95 // exactly the delta, not escalated

	events := Diff(prev, curr, DefaultParams())
	require.Len(t, events, 1)
	assert.Equal(t, domain.ChangeEscalated, events[0].Kind)
	assert.Equal(t, "cell_9.5_31.5", events[0].SubjectID)
	assert.InDelta(t, 12, events[0].Delta, 1e-9)
}

func TestDiff_RapidMovement(t *testing.T) {
	tests := []struct {
		name      string
		prevSpeed float64
		currSpeed float64
		want      bool
	}{
		{name: "crosses threshold", prevSpeed: 8, currSpeed: 12, want: true},
		{name: "already fast", prevSpeed: 13, currSpeed: 15, want: false},
		{name: "stays slow", prevSpeed: 5, currSpeed: 11.9, want: false},
		{name: "slows down", prevSpeed: 15, currSpeed: 6, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Snapshot{Herds: []domain.HerdEstimate{{ID: "A", SpeedKmPerDay: tt.prevSpeed}}}
			curr := Snapshot{Herds: []domain.HerdEstimate{{ID: "A", SpeedKmPerDay: tt.currSpeed}}}
			events := Diff(prev, curr, DefaultParams())
			if !tt.want {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, domain.ChangeRapidMovement, events[0].Kind)
			assert.InDelta(t, tt.currSpeed-tt.prevSpeed, events[0].Delta, 1e-9)
		})
	}
}

func TestDiff_RemovedSubjectsAreSilent(t *testing.T) {
	assert.Empty(t, Diff(snapshot(), Snapshot{}, DefaultParams()))
}

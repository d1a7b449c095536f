package domain

// ChangeKind classifies a detected change.
type ChangeKind string

const (
	ChangeNew           ChangeKind = "new"
	ChangeEscalated     ChangeKind = "escalated"
	ChangeRapidMovement ChangeKind = "rapid-movement"
)

// Subject categories of change events.
const (
	SubjectHerd = "herd"
	SubjectZone = "zone"
	SubjectNews = "news"
)

// ChangeEvent is an ephemeral notification derived from comparing two
// consecutive snapshots.
type ChangeEvent struct {
	Category  string     `json:"category"`
	Kind      ChangeKind `json:"kind"`
	SubjectID string     `json:"subject_id"`
	Delta     float64    `json:"delta"`
	Summary   string     `json:"summary,omitempty"`
}

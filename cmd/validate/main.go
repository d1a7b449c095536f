// Command validate performs integrity checks on a reference dataset: the raw
// records, the payloads built from them, and the herd estimates and conflict
// zones derived from those payloads. It exits non-zero when any phase fails.
//
// Usage:
//
//	go run ./cmd/validate
//	go run ./cmd/validate -reference custom.yaml -as-of 2025-02-10
package main

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/fusion"
	"github.com/0verdr1v3/bovine/internal/reference"
	"github.com/0verdr1v3/bovine/internal/risk"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	refPath := flag.String("reference", "", "reference dataset YAML (defaults to the embedded dataset)")
	asOf := flag.String("as-of", "", "evaluation date YYYY-MM-DD (defaults to today)")
	flag.Parse()

	if code := run(*refPath, *asOf); code != 0 {
		os.Exit(code)
	}
}

func run(refPath, asOfFlag string) int {
	fmt.Println("=== Reference Dataset Validation ===")
	fmt.Println()

	dataset, err := reference.Default()
	if refPath != "" {
		dataset, err = reference.LoadFile(refPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load reference: %v\n", err)
		return 1
	}

	asOf := time.Now().UTC()
	if asOfFlag != "" {
		t, err := time.Parse("2006-01-02", asOfFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: parse -as-of: %v\n", err)
			return 1
		}
		asOf = t.Add(6 * time.Hour)
	}

	census := dataset.Census()
	conflicts := dataset.HistoricalConflicts()

	phases := []*phase{
		validateRecords(dataset),
		validatePayloads(census, conflicts),
		validateDerived(census, conflicts, asOf),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d herds, %d corridors, %d water points, %d historical conflicts\n",
		len(census.Herds), len(census.Corridors), len(census.WaterPoints), len(conflicts.Events))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Records ──

func validateRecords(d *reference.Dataset) *phase {
	p := &phase{name: "Phase 1: Reference records"}
	for _, problem := range d.Problems() {
		p.errorf("%s", problem)
	}
	return p
}

// ── Phase 2: Payloads ──
// The payloads served by the reference sources must pass the same checks
// the executor applies to live feeds.

func validatePayloads(census domain.CensusData, conflicts domain.ConflictData) *phase {
	p := &phase{name: "Phase 2: Payload validation"}
	if err := domain.CensusPayload(census).Validate(); err != nil {
		p.errorf("census: %v", err)
	}
	if err := domain.ConflictPayload(conflicts).Validate(); err != nil {
		p.errorf("historical conflicts: %v", err)
	}
	ids := map[string]bool{}
	for _, e := range conflicts.Events {
		if ids[e.ID] {
			p.errorf("historical conflict id %s is not unique", e.ID)
		}
		ids[e.ID] = true
	}
	return p
}

// ── Phase 3: Derived artifacts ──

func validateDerived(census domain.CensusData, conflicts domain.ConflictData, asOf time.Time) *phase {
	p := &phase{name: "Phase 3: Derived herds and zones"}

	zones := risk.Score(conflicts.Events, nil, census.NamedZones, asOf, risk.DefaultParams())
	for _, z := range zones {
		if z.RiskScore < 0 || z.RiskScore > 100 {
			p.errorf("zone %s: score %d out of [0,100]", z.ID, z.RiskScore)
		}
		if z.RiskLevel != domain.LevelForScore(z.RiskScore) {
			p.errorf("zone %s: level %s does not match score %d", z.ID, z.RiskLevel, z.RiskScore)
		}
	}

	payload := domain.CensusPayload(census)
	in := fusion.InputsFrom([]domain.SourceResult{{
		SourceID:  reference.CensusSourceID,
		Category:  domain.CategoryCensus,
		FetchedAt: asOf,
		Status:    domain.StatusConnected,
		Payload:   &payload,
	}})
	herds, err := fusion.Estimate(in, zones, asOf, fusion.DefaultParams())
	if err != nil {
		p.errorf("fusion: %v", err)
		return p
	}
	if len(herds) != len(census.Herds) {
		p.errorf("fusion produced %d herds from %d seeds", len(herds), len(census.Herds))
	}
	for _, h := range herds {
		if err := h.Validate(); err != nil {
			p.errorf("herd %s: %v", h.ID, err)
		}
	}

	again, err := fusion.Estimate(in, zones, asOf, fusion.DefaultParams())
	if err != nil || !reflect.DeepEqual(herds, again) {
		p.errorf("fusion is not deterministic for identical inputs")
	}

	fmt.Printf("  %d zones scored, %d herds estimated as of %s\n", len(zones), len(herds), asOf.Format("2006-01-02"))
	return p
}

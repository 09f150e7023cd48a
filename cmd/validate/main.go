// Command validate checks a field registry for geometric integrity: every
// entry must load, normalize, and produce a finite area without precision
// risk. It exits nonzero when any field fails, printing per-phase detail.
//
// Usage:
//
//	go run ./cmd/validate -registry fields.json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/geometry"
	"github.com/agrosight/agrosight/internal/store"
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
	registry := flag.String("registry", "fields.json", "path to the field registry")
	maxExtentKm := flag.Float64("max-extent-km", geometry.DefaultMaxExtentKm, "maximum polygon extent before precision risk")
	flag.Parse()

	if code := run(*registry, *maxExtentKm); code != 0 {
		os.Exit(code)
	}
}

func run(path string, maxExtentKm float64) int {
	fmt.Println("=== Field Registry Validation ===")
	fmt.Println()

	fields, err := loadRegistry(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateIdentity(fields),
		validateGeometry(fields),
		validateArea(fields, maxExtentKm),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-40s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Fields: %d\n", len(fields))

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

func loadRegistry(path string) ([]domain.Polygon, error) {
	s, err := store.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return s.List()
}

// validateIdentity checks IDs and names for presence and uniqueness.
func validateIdentity(fields []domain.Polygon) *phase {
	p := &phase{name: "Phase 1: Identity (IDs, names)"}

	seen := map[string]bool{}
	for _, f := range fields {
		if f.ID == "" {
			p.errorf("field %q: missing id", f.Name)
			continue
		}
		if seen[f.ID] {
			p.errorf("field %q: duplicate id", f.ID)
		}
		seen[f.ID] = true
		if f.Name == "" {
			p.errorf("field %q: missing name", f.ID)
		}
		if f.CreatedAt.IsZero() {
			p.errorf("field %q: created_at is zero", f.ID)
		}
	}
	return p
}

// validateGeometry normalizes every ring, surfacing the rejection kind.
func validateGeometry(fields []domain.Polygon) *phase {
	p := &phase{name: "Phase 2: Geometry (ring validity)"}

	for _, f := range fields {
		if _, err := geometry.Normalize(f); err != nil {
			p.errorf("field %q: %v", f.ID, err)
		}
	}
	return p
}

// validateArea computes every field's area under the extent limit.
func validateArea(fields []domain.Polygon, maxExtentKm float64) *phase {
	p := &phase{name: "Phase 3: Area (extent, magnitude)"}

	for _, f := range fields {
		norm, err := geometry.Normalize(f)
		if err != nil {
			continue // reported in phase 2
		}
		area, err := geometry.Area(norm, geometry.AreaOptions{MaxExtentKm: maxExtentKm})
		if err != nil {
			p.errorf("field %q: %v", f.ID, err)
			continue
		}
		if area <= 0 {
			p.errorf("field %q: non-positive area %g", f.ID, area)
		}
	}
	return p
}

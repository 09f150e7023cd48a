// Command genfields generates a synthetic field registry for local runs and
// test fixtures. Fields are irregular quadrilaterals scattered around a
// center coordinate, written in the registry's GeoJSON-style shape.
//
// Usage:
//
//	go run ./cmd/genfields -out fields.json -count 5 -center-lat 40.63 -center-lon 15.80
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// baseDate gives every generated field a fixed, reproducible CreatedAt.
var baseDate = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

type geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

type fieldEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Geometry  geometry  `json:"geometry"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "fields.json", "output path for the registry")
	count := flag.Int("count", 5, "number of fields to generate")
	centerLat := flag.Float64("center-lat", 40.63, "center latitude")
	centerLon := flag.Float64("center-lon", 15.80, "center longitude")
	seed := flag.Int64("seed", 1, "random seed for reproducible output")
	flag.Parse()

	if *count < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	rng := rand.New(rand.NewSource(*seed))

	fields := make([]fieldEntry, 0, *count)
	for i := 0; i < *count; i++ {
		fields = append(fields, makeField(rng, i, *centerLat, *centerLon))
	}

	if err := writeJSON(*out, fields); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	log.Printf("wrote %d fields: %s", len(fields), *out)
	return nil
}

// makeField builds one convex quadrilateral a few hundred meters across,
// offset from the center so fields do not overlap.
func makeField(rng *rand.Rand, i int, centerLat, centerLon float64) fieldEntry {
	// Roughly 1 km spacing per field, in degrees.
	lat := centerLat + float64(i%3)*0.01 + rng.Float64()*0.002
	lon := centerLon + float64(i/3)*0.012 + rng.Float64()*0.002

	// Half-extents between ~150 m and ~350 m.
	dLat := 0.0015 + rng.Float64()*0.002
	dLon := 0.002 + rng.Float64()*0.0025

	jitter := func() float64 { return (rng.Float64() - 0.5) * 0.0006 }

	// Open ring, counterclockwise, closed again on write since GeoJSON
	// expects the first coordinate repeated.
	ring := [][]float64{
		{lon - dLon + jitter(), lat - dLat + jitter()},
		{lon + dLon + jitter(), lat - dLat + jitter()},
		{lon + dLon + jitter(), lat + dLat + jitter()},
		{lon - dLon + jitter(), lat + dLat + jitter()},
	}
	ring = append(ring, ring[0])

	return fieldEntry{
		ID:        fmt.Sprintf("field-%03d", i+1),
		Name:      fmt.Sprintf("Orchard %d", i+1),
		CreatedAt: baseDate.AddDate(0, 0, i),
		Geometry: geometry{
			Type:        "Polygon",
			Coordinates: [][][]float64{ring},
		},
	}
}

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// Package store loads the read-only field registry. The engine never writes
// polygons; the drawing UI owns their lifecycle and this package only reads
// the registry file it maintains.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/agrosight/agrosight/internal/domain"
)

// ErrNotFound is returned when a field ID is absent from the registry.
var ErrNotFound = errors.New("field not found")

// PolygonStore is the read-only polygon collaborator consumed by the engine.
type PolygonStore interface {
	Load(id string) (domain.Polygon, error)
	List() ([]domain.Polygon, error)
}

// fileField is the registry's on-disk shape: GeoJSON-style geometry with
// [lon, lat] coordinate order, matching what map drawing tools export.
type fileField struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Geometry  struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// FileStore serves polygons from a JSON registry file, loaded once at
// construction. The file is never written back.
type FileStore struct {
	fields map[string]domain.Polygon
}

// NewFileStore reads and parses the registry at path.
func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field registry: %w", err)
	}

	var raw []fileField
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse field registry %s: %w", path, err)
	}

	fields := make(map[string]domain.Polygon, len(raw))
	for _, f := range raw {
		if f.ID == "" {
			return nil, fmt.Errorf("field registry %s: entry %q missing id", path, f.Name)
		}
		if f.Geometry.Type != "Polygon" || len(f.Geometry.Coordinates) == 0 {
			return nil, fmt.Errorf("field registry %s: field %q is not a polygon", path, f.ID)
		}
		ring := make([]domain.LatLon, 0, len(f.Geometry.Coordinates[0]))
		for _, c := range f.Geometry.Coordinates[0] {
			if len(c) < 2 {
				return nil, fmt.Errorf("field registry %s: field %q has a malformed coordinate", path, f.ID)
			}
			ring = append(ring, domain.LatLon{Lon: c[0], Lat: c[1]})
		}
		fields[f.ID] = domain.Polygon{
			ID:        f.ID,
			Name:      f.Name,
			Ring:      ring,
			CreatedAt: f.CreatedAt,
		}
	}

	return &FileStore{fields: fields}, nil
}

// Load returns the polygon with the given ID.
func (s *FileStore) Load(id string) (domain.Polygon, error) {
	p, ok := s.fields[id]
	if !ok {
		return domain.Polygon{}, fmt.Errorf("load field %q: %w", id, ErrNotFound)
	}
	return p, nil
}

// List returns all registered polygons ordered by ID.
func (s *FileStore) List() ([]domain.Polygon, error) {
	out := make([]domain.Polygon, 0, len(s.fields))
	for _, p := range s.fields {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

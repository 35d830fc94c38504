package registry

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/tide"
)

// Registry is an ordered, read-only list of locations for one source.
type Registry struct {
	entries []models.Location
	byName  map[string]int
}

func New(entries []models.Location) (*Registry, error) {
	r := &Registry{
		entries: make([]models.Location, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	copy(r.entries, entries)

	for i, e := range r.entries {
		name := normalize(e.Name)
		if name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate location %q", e.Name)
		}
		r.byName[name] = i
	}
	return r, nil
}

// ForSource returns the built-in registry for kind.
func ForSource(kind models.SourceKind) (*Registry, error) {
	switch kind {
	case models.SourceMareeInfo:
		return New(MareeInfoPorts())
	case models.SourceHoraire:
		return New(HoraireMareeSlugs())
	case models.SourceWorldTides:
		return New(WorldTidesPorts())
	default:
		return nil, fmt.Errorf("no built-in registry for source %q", kind)
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup finds an entry by display name, ignoring case and surrounding blanks.
func (r *Registry) Lookup(name string) (models.Location, bool) {
	i, ok := r.byName[normalize(name)]
	if !ok {
		return models.Location{}, false
	}
	return r.entries[i], true
}

// Resolve returns the source key for name. Unknown names and section headers
// fail with an InvalidSelection error.
func (r *Registry) Resolve(name string) (models.SourceKey, error) {
	loc, ok := r.Lookup(name)
	if !ok {
		return models.SourceKey{}, tide.NewInvalidSelectionError(fmt.Sprintf("lieu inconnu : %q", name))
	}
	if loc.IsPlaceholder() {
		return models.SourceKey{}, tide.NewInvalidSelectionError("veuillez sélectionner une ville dans la liste (pas une région)")
	}
	return *loc.Key, nil
}

// Locations returns every entry in display order, section headers included.
func (r *Registry) Locations() []models.Location {
	out := make([]models.Location, len(r.entries))
	copy(out, r.entries)
	return out
}

// Selectable returns the entries that can actually be resolved.
func (r *Registry) Selectable() []models.Location {
	out := make([]models.Location, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.IsPlaceholder() {
			out = append(out, e)
		}
	}
	return out
}

// FindNearest ranks selectable entries with coordinates by distance in km
// from (lat, lon) and returns at most limit of them.
func (r *Registry) FindNearest(lat, lon float64, limit int) ([]models.Location, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude: %v", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude: %v", lon)
	}
	if limit <= 0 {
		limit = 1
	}

	var ranked []models.Location
	for _, e := range r.entries {
		if e.IsPlaceholder() || e.Coordinates == nil {
			continue
		}
		e.Distance = calculateDistance(lat, lon, e.Coordinates.Latitude, e.Coordinates.Longitude)
		ranked = append(ranked, e)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	log.Trace().Float64("lat", lat).Float64("lon", lon).Int("found", len(ranked)).Msg("FindNearest")
	return ranked, nil
}

func calculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371.0 // km

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

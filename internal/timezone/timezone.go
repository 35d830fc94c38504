package timezone

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without /usr/share/zoneinfo (Lambda)

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
)

const (
	Publishing       = "Europe/Paris"
	defaultCacheSize = 64
)

// Common zones are listed first by Zones, in this order.
var Common = []string{
	"Europe/Paris",
	"UTC",
	"Europe/London",
	"Europe/Brussels",
	"America/Guadeloupe",
	"America/Martinique",
	"America/Cayenne",
	"Indian/Reunion",
	"Indian/Mayotte",
	"Pacific/Noumea",
	"Pacific/Tahiti",
	"America/Miquelon",
}

var zoneDirs = []string{
	"/usr/share/zoneinfo",
	"/usr/lib/zoneinfo",
	"/usr/share/lib/zoneinfo",
}

// Resolver loads IANA zones by name and keeps the loaded locations in an LRU.
type Resolver struct {
	cache   *lru.Cache[string, *time.Location]
	metrics *observability.Metrics
}

func NewResolver(size int, metrics *observability.Metrics) (*Resolver, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *time.Location](size)
	if err != nil {
		return nil, fmt.Errorf("creating zone cache: %w", err)
	}
	return &Resolver{cache: cache, metrics: metrics}, nil
}

// Load returns the location for an IANA name. Empty and "Local" are refused
// so results never depend on the host configuration.
func (r *Resolver) Load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("invalid time zone %q", name)
	}
	if loc, ok := r.cache.Get(name); ok {
		r.metrics.ZoneLookup(true)
		return loc, nil
	}
	r.metrics.ZoneLookup(false)

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	r.cache.Add(name, loc)
	return loc, nil
}

// Zones lists the common zones first, then every other zone found in the
// system database, sorted.
func Zones() []string {
	seen := make(map[string]bool, len(Common))
	out := make([]string, 0, len(Common))
	for _, z := range Common {
		seen[z] = true
		out = append(out, z)
	}

	var rest []string
	for _, dir := range zoneDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			name, err := filepath.Rel(dir, path)
			if err != nil || !isZoneName(name) || seen[name] {
				return nil
			}
			if _, err := time.LoadLocation(name); err != nil {
				return nil
			}
			seen[name] = true
			rest = append(rest, name)
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("walking zoneinfo")
		}
		break
	}

	sort.Strings(rest)
	return append(out, rest...)
}

// isZoneName keeps Area/City style names and drops database artifacts
// (posix/, right/, *.tab, leap-seconds files, ...).
func isZoneName(name string) bool {
	if !strings.Contains(name, "/") {
		return false
	}
	first := name[:strings.Index(name, "/")]
	switch first {
	case "posix", "right", "Etc", "SystemV":
		return false
	}
	if first[0] < 'A' || first[0] > 'Z' {
		return false
	}
	return !strings.ContainsAny(name, ".+")
}

// Normalizer attaches civil instants to tide events.
type Normalizer struct {
	publishing *time.Location
}

// NewNormalizer interprets naive wall-clock readings in publishing.
func NewNormalizer(publishing *time.Location) *Normalizer {
	return &Normalizer{publishing: publishing}
}

// Localize returns copies of events with Civil set in target. Naive events
// carry their wall clock in Observed's fields and are first placed in the
// publishing zone, so DST rules of that zone apply.
func (n *Normalizer) Localize(events []models.TideEvent, target *time.Location) []models.TideEvent {
	out := make([]models.TideEvent, len(events))
	for i, ev := range events {
		out[i] = ev.WithCivil(n.Civil(ev, target))
	}
	return out
}

// Civil is the instant of ev expressed in target.
func (n *Normalizer) Civil(ev models.TideEvent, target *time.Location) time.Time {
	if !ev.Naive {
		return ev.Observed.In(target)
	}
	o := ev.Observed
	wall := time.Date(o.Year(), o.Month(), o.Day(), o.Hour(), o.Minute(), o.Second(), o.Nanosecond(), n.publishing)
	return wall.In(target)
}

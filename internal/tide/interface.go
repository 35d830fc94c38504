package tide

import (
	"context"
	"time"

	"github.com/bbernstein/maree/internal/models"
)

// Credentials carries the static API key some upstreams want.
type Credentials struct {
	APIKey string
}

// SpanPolicy bounds how many days a source accepts in one request. Zero
// disables the corresponding check.
type SpanPolicy struct {
	// HardMaxDays rejects longer ranges with InvalidDateRange.
	HardMaxDays int
	// SoftMaxDays lets longer ranges through with a warning.
	SoftMaxDays int
}

// FetchOptions are per-call knobs shared by all sources.
type FetchOptions struct {
	Credentials Credentials
	// Zone is the civil zone of the request; sources that need "local
	// midnight" use it.
	Zone *time.Location
	// Progress, when set, is called after each unit of work.
	Progress func(done, total int)
	// Warn, when set, receives user-facing notes about partial results.
	Warn func(msg string)
}

// Source fetches and parses tide extrema from one upstream. The returned
// slice is fully materialized; calling again fetches again.
type Source interface {
	Kind() models.SourceKind
	Policy() SpanPolicy
	RequiresCredentials() bool
	FetchRange(ctx context.Context, key models.SourceKey, r models.DateRange, opts FetchOptions) ([]models.TideEvent, error)
}

// Registry resolves display names to source keys.
type Registry interface {
	Resolve(name string) (models.SourceKey, error)
	Locations() []models.Location
}

// ZoneLoader resolves IANA zone names.
type ZoneLoader interface {
	Load(name string) (*time.Location, error)
}

// Localizer attaches civil instants in target to events.
type Localizer interface {
	Localize(events []models.TideEvent, target *time.Location) []models.TideEvent
}

// Encoder renders events into a calendar payload.
type Encoder interface {
	Encode(events []models.TideEvent, locationLabel string, zone *time.Location) ([]byte, error)
	Filename(locationLabel string, r models.DateRange) string
	ContentType() string
}

package horaire

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
	"github.com/bbernstein/maree/internal/tide"
	"github.com/bbernstein/maree/pkg/http/client"
)

// RecommendedDays is how far ahead the site usually publishes.
const RecommendedDays = 30

// ClientOptions returns the HTTP options the site expects, Referer included.
func ClientOptions(baseURL string, timeout time.Duration) client.Options {
	baseURL = strings.TrimRight(baseURL, "/")
	return client.Options{
		BaseURL: baseURL,
		Timeout: timeout,
		Headers: map[string]string{
			"Referer":         baseURL + "/",
			"Accept-Language": "fr-FR,fr;q=0.9",
		},
	}
}

// Source reads a single horaire-maree.fr page covering many days.
type Source struct {
	client  client.Interface
	clock   clockwork.Clock
	metrics *observability.Metrics
}

type Option func(*Source)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Source) {
		s.clock = clock
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}

func New(httpClient client.Interface, opts ...Option) *Source {
	s := &Source{client: httpClient, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Kind() models.SourceKind {
	return models.SourceHoraire
}

func (s *Source) Policy() tide.SpanPolicy {
	return tide.SpanPolicy{SoftMaxDays: RecommendedDays}
}

func (s *Source) RequiresCredentials() bool {
	return false
}

func (s *Source) FetchRange(ctx context.Context, key models.SourceKey, r models.DateRange, opts tide.FetchOptions) ([]models.TideEvent, error) {
	if key.Slug == "" {
		return nil, tide.NewInvalidSelectionError("identifiant horaire-maree.fr manquant pour ce lieu")
	}
	path := fmt.Sprintf("/maree/%s/", url.PathEscape(key.Slug))
	kind := string(s.Kind())

	started := s.clock.Now()
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		s.metrics.ObserveUpstream(kind, "error", s.clock.Since(started))
		if errors.Is(err, client.ErrBodyTooLarge) {
			return nil, tide.NewUpstreamFormatError("page horaire-maree.fr trop volumineuse", err)
		}
		return nil, tide.NewUpstreamUnavailableError("horaire-maree.fr est injoignable", err)
	}
	if !resp.OK() {
		s.metrics.ObserveUpstream(kind, "status", s.clock.Since(started))
		return nil, tide.NewUpstreamUnavailableError(
			fmt.Sprintf("horaire-maree.fr a répondu HTTP %d", resp.StatusCode), nil)
	}
	s.metrics.ObserveUpstream(kind, "success", s.clock.Since(started))
	if opts.Progress != nil {
		opts.Progress(1, 1)
	}

	page, err := ParsePage(resp.Body)
	if err != nil {
		return nil, tide.NewUpstreamFormatError("page horaire-maree.fr illisible", err)
	}
	if page.Boundaries == 0 {
		return nil, tide.NewUpstreamFormatError("aucune date trouvée sur la page horaire-maree.fr, la mise en page a peut-être changé", nil)
	}
	if page.Markers == 0 {
		return nil, tide.NewUpstreamFormatError("aucune ligne de marée trouvée sur la page horaire-maree.fr", nil)
	}

	for _, sk := range page.Skipped {
		s.metrics.SkipRow(kind, sk.Reason)
		log.Debug().
			Str("source", kind).
			Str("date", sk.Date.Format("2006-01-02")).
			Str("reason", sk.Reason).
			Str("text", sk.Text).
			Msg("skipping row")
	}

	events := make([]models.TideEvent, 0, len(page.Records))
	outside := 0
	for _, rec := range page.Records {
		if !r.Contains(rec.Date) {
			outside++
			continue
		}
		events = append(events, toEvent(rec))
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Observed.Before(events[j].Observed)
	})

	log.Debug().
		Str("source", kind).
		Str("slug", key.Slug).
		Int("events", len(events)).
		Int("outside_range", outside).
		Msg("parsed page")
	s.metrics.AddEvents(kind, len(events))
	return events, nil
}

func toEvent(rec Record) models.TideEvent {
	d := rec.Date
	return models.TideEvent{
		Observed:       time.Date(d.Year(), d.Month(), d.Day(), rec.Hour, rec.Minute, 0, 0, time.UTC),
		Naive:          true,
		Type:           rec.Type,
		Height:         rec.Height,
		HeightText:     rec.HeightText,
		Coefficient:    rec.Coefficient,
		Classification: models.ClassificationExplicit,
		Source:         models.SourceHoraire,
	}
}

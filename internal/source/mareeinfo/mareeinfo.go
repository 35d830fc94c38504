package mareeinfo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
	"github.com/bbernstein/maree/internal/tide"
	"github.com/bbernstein/maree/pkg/http/client"
)

const (
	// PolitenessDelay separates consecutive day requests.
	PolitenessDelay = 100 * time.Millisecond
	MaxDays         = 60
)

// Source scrapes one maree.info page per day.
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
	s := &Source{
		client: httpClient,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Kind() models.SourceKind {
	return models.SourceMareeInfo
}

func (s *Source) Policy() tide.SpanPolicy {
	return tide.SpanPolicy{HardMaxDays: MaxDays}
}

func (s *Source) RequiresCredentials() bool {
	return false
}

// FetchRange requests every day of r in order. A day that fails is logged
// and contributes no events; only cancellation of ctx aborts the range.
func (s *Source) FetchRange(ctx context.Context, key models.SourceKey, r models.DateRange, opts tide.FetchOptions) ([]models.TideEvent, error) {
	if key.SiteID == "" {
		return nil, tide.NewInvalidSelectionError("identifiant maree.info manquant pour ce lieu")
	}

	var events []models.TideEvent
	total := r.Days()
	done := 0
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		if done > 0 {
			select {
			case <-ctx.Done():
			case <-s.clock.After(PolitenessDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, tide.NewUpstreamUnavailableError("récupération maree.info interrompue", err)
		}

		dayEvents, err := s.fetchDay(ctx, key.SiteID, day)
		if err != nil {
			log.Warn().
				Str("source", string(s.Kind())).
				Str("site", key.SiteID).
				Str("date", day.Format("2006-01-02")).
				Err(err).
				Msg("skipping day")
		}
		events = append(events, dayEvents...)

		done++
		if opts.Progress != nil {
			opts.Progress(done, total)
		}
	}

	s.metrics.AddEvents(string(s.Kind()), len(events))
	return events, nil
}

func (s *Source) fetchDay(ctx context.Context, siteID string, day time.Time) ([]models.TideEvent, error) {
	path := fmt.Sprintf("/%s?d=%s", url.PathEscape(siteID), day.Format("20060102"))

	started := s.clock.Now()
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		s.metrics.ObserveUpstream(string(s.Kind()), "error", s.clock.Since(started))
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	if !resp.OK() {
		s.metrics.ObserveUpstream(string(s.Kind()), "status", s.clock.Since(started))
		return nil, fmt.Errorf("fetching %s: HTTP %d", path, resp.StatusCode)
	}
	s.metrics.ObserveUpstream(string(s.Kind()), "success", s.clock.Since(started))

	records, skipped, err := ParseDay(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, sk := range skipped {
		s.metrics.SkipRow(string(s.Kind()), sk.Reason)
		log.Debug().
			Str("source", string(s.Kind())).
			Str("date", day.Format("2006-01-02")).
			Str("reason", sk.Reason).
			Str("text", sk.Text).
			Msg("skipping row")
	}

	events := make([]models.TideEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, toEvent(day, rec))
	}
	return events, nil
}

// toEvent attaches day to rec. Bold rows are high tides; anything else is
// assumed low.
func toEvent(day time.Time, rec Record) models.TideEvent {
	ev := models.TideEvent{
		Observed:       time.Date(day.Year(), day.Month(), day.Day(), rec.Hour, rec.Minute, 0, 0, time.UTC),
		Naive:          true,
		Type:           models.TideTypeLow,
		Height:         rec.Height,
		HeightText:     rec.HeightText,
		Coefficient:    rec.Coefficient,
		Classification: models.ClassificationFallback,
		Source:         models.SourceMareeInfo,
	}
	if rec.Bold {
		ev.Type = models.TideTypeHigh
		ev.Classification = models.ClassificationTypographic
	}
	return ev
}

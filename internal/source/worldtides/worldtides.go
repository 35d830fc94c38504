package worldtides

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
	"github.com/bbernstein/maree/internal/tide"
	"github.com/bbernstein/maree/pkg/http/client"
)

const (
	RecommendedDays = 30
	datum           = "LAT"
)

// Source queries the worldtides v3 API by coordinates.
type Source struct {
	client       client.Interface
	clock        clockwork.Clock
	metrics      *observability.Metrics
	coefficients bool
	fallbackZone *time.Location
}

type Option func(*Source)

// WithCoefficients toggles the second call for tidal coefficients.
func WithCoefficients(enabled bool) Option {
	return func(s *Source) {
		s.coefficients = enabled
	}
}

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

// WithFallbackZone sets the zone used for "local midnight" when a request
// carries none.
func WithFallbackZone(loc *time.Location) Option {
	return func(s *Source) {
		s.fallbackZone = loc
	}
}

func New(httpClient client.Interface, opts ...Option) *Source {
	s := &Source{
		client:       httpClient,
		clock:        clockwork.NewRealClock(),
		coefficients: true,
		fallbackZone: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Kind() models.SourceKind {
	return models.SourceWorldTides
}

func (s *Source) Policy() tide.SpanPolicy {
	return tide.SpanPolicy{SoftMaxDays: RecommendedDays}
}

func (s *Source) RequiresCredentials() bool {
	return true
}

func (s *Source) FetchRange(ctx context.Context, key models.SourceKey, r models.DateRange, opts tide.FetchOptions) ([]models.TideEvent, error) {
	if opts.Credentials.APIKey == "" {
		return nil, tide.NewMissingCredentialsError("clé API worldtides.info manquante")
	}
	if key.Coordinates == nil {
		return nil, tide.NewInvalidSelectionError("coordonnées manquantes pour ce lieu")
	}

	zone := opts.Zone
	if zone == nil {
		zone = s.fallbackZone
	}
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, zone)
	params := url.Values{
		"lat":      {strconv.FormatFloat(key.Coordinates.Latitude, 'f', -1, 64)},
		"lon":      {strconv.FormatFloat(key.Coordinates.Longitude, 'f', -1, 64)},
		"start":    {strconv.FormatInt(start.Unix(), 10)},
		"days":     {strconv.Itoa(r.Days())},
		"key":      {opts.Credentials.APIKey},
		"datum":    {datum},
		"timezone": {"UTC"},
	}

	total := 1
	if s.coefficients {
		total = 2
	}

	extremesQuery := cloneValues(params)
	extremesQuery.Set("extremes", "")
	body, err := s.get(ctx, extremesQuery)
	if err != nil {
		return nil, err
	}
	extremes, err := ParseExtremes(body)
	if err != nil {
		return nil, classify(err)
	}
	if opts.Progress != nil {
		opts.Progress(1, total)
	}

	var coefficients map[int64]float64
	if s.coefficients && len(extremes) > 0 {
		coeffQuery := cloneValues(params)
		coeffQuery.Set("property", "Coefficient")
		coefficients, err = s.fetchCoefficients(ctx, coeffQuery)
		if err != nil {
			log.Warn().
				Str("source", string(s.Kind())).
				Err(err).
				Msg("coefficients unavailable, continuing without them")
			if opts.Warn != nil {
				opts.Warn("coefficients indisponibles, calendrier généré sans eux : " + tide.UserMessage(err))
			}
		}
	}
	if opts.Progress != nil && total == 2 {
		opts.Progress(2, total)
	}

	events := make([]models.TideEvent, 0, len(extremes))
	for _, ex := range extremes {
		ev, ok := s.toEvent(ex, coefficients)
		if ok {
			events = append(events, ev)
		}
	}
	s.metrics.AddEvents(string(s.Kind()), len(events))
	return events, nil
}

func (s *Source) fetchCoefficients(ctx context.Context, q url.Values) (map[int64]float64, error) {
	body, err := s.get(ctx, q)
	if err != nil {
		return nil, err
	}
	coefficients, err := ParseCoefficients(body)
	if err != nil {
		return nil, classify(err)
	}
	return coefficients, nil
}

func (s *Source) toEvent(ex Extreme, coefficients map[int64]float64) (models.TideEvent, bool) {
	var tideType models.TideType
	switch ex.Type {
	case "High":
		tideType = models.TideTypeHigh
	case "Low":
		tideType = models.TideTypeLow
	default:
		s.metrics.SkipRow(string(s.Kind()), "type")
		log.Debug().Str("type", ex.Type).Int64("dt", ex.Dt).Msg("skipping extreme")
		return models.TideEvent{}, false
	}
	if ex.Height < 0 {
		s.metrics.SkipRow(string(s.Kind()), "height")
		log.Debug().Float64("height", ex.Height).Int64("dt", ex.Dt).Msg("skipping extreme below datum")
		return models.TideEvent{}, false
	}

	ev := models.TideEvent{
		Observed:       time.Unix(ex.Dt, 0).UTC(),
		Type:           tideType,
		Height:         ex.Height,
		HeightText:     strconv.FormatFloat(ex.Height, 'f', 2, 64) + "m",
		Coefficient:    models.NoCoefficient,
		Classification: models.ClassificationExplicit,
		Source:         models.SourceWorldTides,
	}
	if v, ok := coefficients[ex.Dt]; ok {
		if c, err := models.NewCoefficient(v); err == nil {
			ev.Coefficient = c
		}
	}
	return ev, true
}

func (s *Source) get(ctx context.Context, q url.Values) ([]byte, error) {
	kind := string(s.Kind())
	started := s.clock.Now()
	resp, err := s.client.Get(ctx, "?"+q.Encode())
	if err != nil {
		s.metrics.ObserveUpstream(kind, "error", s.clock.Since(started))
		if errors.Is(err, client.ErrBodyTooLarge) {
			return nil, tide.NewUpstreamFormatError("réponse worldtides.info trop volumineuse", err)
		}
		return nil, tide.NewUpstreamUnavailableError("worldtides.info est injoignable", err)
	}
	if !resp.OK() {
		s.metrics.ObserveUpstream(kind, "status", s.clock.Since(started))
		// the API explains refusals in the body
		var apiErr *APIError
		if _, err := decode(resp.Body); errors.As(err, &apiErr) {
			return nil, classify(err)
		}
		return nil, tide.NewUpstreamUnavailableError("worldtides.info a répondu HTTP "+strconv.Itoa(resp.StatusCode), nil)
	}
	s.metrics.ObserveUpstream(kind, "success", s.clock.Since(started))
	return resp.Body, nil
}

func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Quota():
			return tide.NewUpstreamFormatError("quota worldtides.info épuisé : "+apiErr.Message, err)
		case apiErr.InvalidKey():
			return tide.NewUpstreamFormatError("clé API worldtides.info refusée : "+apiErr.Message, err)
		default:
			return tide.NewUpstreamFormatError("worldtides.info a refusé la requête : "+apiErr.Message, err)
		}
	}
	return tide.NewUpstreamFormatError("réponse worldtides.info illisible", err)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

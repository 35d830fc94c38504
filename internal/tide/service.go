package tide

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
)

// Stage is a step of calendar generation.
type Stage string

const (
	StageIdle        Stage = "IDLE"
	StageValidating  Stage = "VALIDATING"
	StageFetching    Stage = "FETCHING"
	StageNormalizing Stage = "NORMALIZING"
	StageEncoding    Stage = "ENCODING"
	StageReady       Stage = "READY"
	StageFailed      Stage = "FAILED"
)

const DefaultZone = "Europe/Paris"

// Backend pairs a source with the registry holding its location keys.
type Backend struct {
	Source   Source
	Registry Registry
}

// Request is one calendar generation. Empty Source, Zone and APIKey fall
// back to the service defaults.
type Request struct {
	Location string
	Dates    []time.Time
	Source   models.SourceKind
	Zone     string
	APIKey   string

	Progress func(done, total int)
	OnStage  func(Stage)
}

type Result struct {
	Location    string
	Key         models.SourceKey
	Range       models.DateRange
	Source      models.SourceKind
	Zone        *time.Location
	Events      []models.TideEvent
	Payload     []byte
	Filename    string
	ContentType string
	Warnings    []string
	Stage       Stage
}

type Service struct {
	backends    map[models.SourceKind]Backend
	defaultKind models.SourceKind
	zones       ZoneLoader
	localizer   Localizer
	encoder     Encoder
	defaultZone string
	credentials Credentials
	metrics     *observability.Metrics
	clock       clockwork.Clock
}

type Option func(*Service)

func WithDefaultSource(kind models.SourceKind) Option {
	return func(s *Service) {
		s.defaultKind = kind
	}
}

func WithDefaultZone(zone string) Option {
	return func(s *Service) {
		s.defaultZone = zone
	}
}

func WithCredentials(creds Credentials) Option {
	return func(s *Service) {
		s.credentials = creds
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(zones ZoneLoader, localizer Localizer, encoder Encoder, backends []Backend, opts ...Option) (*Service, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one backend is required")
	}

	s := &Service{
		backends:    make(map[models.SourceKind]Backend, len(backends)),
		defaultKind: backends[0].Source.Kind(),
		zones:       zones,
		localizer:   localizer,
		encoder:     encoder,
		defaultZone: DefaultZone,
		clock:       clockwork.NewRealClock(),
	}
	for _, b := range backends {
		if b.Source == nil || b.Registry == nil {
			return nil, errors.New("backend needs both a source and a registry")
		}
		s.backends[b.Source.Kind()] = b
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := s.backends[s.defaultKind]; !ok {
		return nil, fmt.Errorf("default source %q has no backend", s.defaultKind)
	}
	return s, nil
}

func (s *Service) DefaultSource() models.SourceKind {
	return s.defaultKind
}

// Generate runs validation, fetch, localization and encoding for one request.
// On failure the returned error is a *Error stamped with the failing stage.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	started := s.clock.Now()
	kind := req.Source
	if kind == "" {
		kind = s.defaultKind
	}

	res := &Result{Location: req.Location, Source: kind, Stage: StageIdle}
	enter := func(stage Stage) {
		res.Stage = stage
		if req.OnStage != nil {
			req.OnStage(stage)
		}
	}

	err := s.generate(ctx, req, kind, res, enter)

	outcome := "ok"
	if err != nil {
		failedAt := res.Stage
		enter(StageFailed)
		err = atStage(err, failedAt)
		outcome = string(KindOf(err))
		log.Warn().
			Str("source", string(kind)).
			Str("location", req.Location).
			Str("stage", string(failedAt)).
			Err(err).
			Msg("calendar generation failed")
	}
	s.metrics.ObserveGeneration(string(kind), outcome, s.clock.Since(started))

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) generate(ctx context.Context, req Request, kind models.SourceKind, res *Result, enter func(Stage)) error {
	enter(StageValidating)

	// (a) selection
	backend, ok := s.backends[kind]
	if !ok {
		return NewInvalidSelectionError(fmt.Sprintf("source de données inconnue : %q", kind))
	}
	key, err := backend.Registry.Resolve(req.Location)
	if err != nil {
		return err
	}
	res.Key = key

	// (b) dates
	r, err := models.NewDateRange(req.Dates...)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDateCount):
			return NewInvalidRangeError("veuillez choisir une date de début et une date de fin", err)
		case errors.Is(err, models.ErrDateOrder):
			return NewInvalidRangeError("la date de début doit précéder ou égaler la date de fin", err)
		default:
			return NewInvalidRangeError("période invalide", err)
		}
	}
	res.Range = r

	// (c) span
	src := backend.Source
	policy := src.Policy()
	days := r.Days()
	attribution := kind.Attribution()
	if policy.HardMaxDays > 0 && days > policy.HardMaxDays {
		return NewInvalidRangeError(fmt.Sprintf(
			"période trop longue pour %s : %d jours demandés, %d au maximum",
			attribution, days, policy.HardMaxDays), nil)
	}
	if policy.SoftMaxDays > 0 && days > policy.SoftMaxDays {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"période de %d jours au-delà des %d jours conseillés pour %s : la génération peut être lente ou incomplète",
			days, policy.SoftMaxDays, attribution))
		s.metrics.WarnSpan(string(kind))
	}

	// (d) credentials
	creds := s.credentials
	if req.APIKey != "" {
		creds.APIKey = req.APIKey
	}
	if src.RequiresCredentials() {
		apiKey, err := checkAPIKey(creds.APIKey, attribution)
		if err != nil {
			return err
		}
		creds.APIKey = apiKey
	}

	zoneName := req.Zone
	if zoneName == "" {
		zoneName = s.defaultZone
	}
	zone, err := s.zones.Load(zoneName)
	if err != nil {
		return NewInvalidSelectionError(fmt.Sprintf("fuseau horaire inconnu : %q", zoneName))
	}
	res.Zone = zone

	enter(StageFetching)
	log.Debug().
		Str("source", string(kind)).
		Str("location", req.Location).
		Str("key", key.String()).
		Str("range", r.String()).
		Msg("fetching tides")

	raw, err := src.FetchRange(ctx, key, r, FetchOptions{
		Credentials: creds,
		Zone:        zone,
		Progress:    req.Progress,
		Warn: func(msg string) {
			res.Warnings = append(res.Warnings, msg)
		},
	})
	if err != nil {
		return err
	}

	events := make([]models.TideEvent, 0, len(raw))
	for _, ev := range raw {
		if err := ev.Validate(); err != nil {
			log.Warn().Str("source", string(kind)).Err(err).Msg("dropping invalid tide event")
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return NewNoDataError(fmt.Sprintf(
			"aucune marée trouvée pour %s du %s au %s sur %s",
			req.Location, r.Start.Format("02/01/2006"), r.End.Format("02/01/2006"), attribution))
	}

	enter(StageNormalizing)
	events = s.localizer.Localize(events, zone)
	res.Events = events

	enter(StageEncoding)
	payload, err := s.encoder.Encode(events, req.Location, zone)
	if err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	res.Payload = payload
	res.Filename = s.encoder.Filename(req.Location, r)
	res.ContentType = s.encoder.ContentType()

	enter(StageReady)
	return nil
}

// checkAPIKey trims key and rejects empty or obviously malformed values.
func checkAPIKey(key, attribution string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", NewMissingCredentialsError(fmt.Sprintf("clé API %s manquante", attribution))
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", NewMissingCredentialsError(fmt.Sprintf("clé API %s invalide", attribution))
		}
	}
	return key, nil
}

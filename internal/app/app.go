package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/calendar"
	"github.com/bbernstein/maree/internal/config"
	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
	"github.com/bbernstein/maree/internal/registry"
	"github.com/bbernstein/maree/internal/source/horaire"
	"github.com/bbernstein/maree/internal/source/mareeinfo"
	"github.com/bbernstein/maree/internal/source/worldtides"
	"github.com/bbernstein/maree/internal/tide"
	"github.com/bbernstein/maree/internal/timezone"
	"github.com/bbernstein/maree/pkg/http/client"
)

// App holds the long-lived, read-only pieces shared by every surface.
type App struct {
	Config     *config.Config
	Metrics    *observability.Metrics
	Service    *tide.Service
	Zones      *timezone.Resolver
	Encoder    *calendar.Encoder
	Clock      clockwork.Clock
	registries map[models.SourceKind]*registry.Registry
}

type Option func(*options)

type options struct {
	clock   clockwork.Clock
	clients map[models.SourceKind]client.Interface
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithClient replaces the HTTP client of one source.
func WithClient(kind models.SourceKind, c client.Interface) Option {
	return func(o *options) {
		o.clients[kind] = c
	}
}

// New wires registries, sources, the zone resolver and the encoder from cfg.
// metrics may be nil.
func New(cfg *config.Config, metrics *observability.Metrics, opts ...Option) (*App, error) {
	o := &options{
		clock:   clockwork.NewRealClock(),
		clients: map[models.SourceKind]client.Interface{},
	}
	for _, opt := range opts {
		opt(o)
	}

	zones, err := timezone.NewResolver(cfg.ZoneCacheSize, metrics)
	if err != nil {
		return nil, err
	}
	publishing, err := zones.Load(cfg.PublishingZone)
	if err != nil {
		return nil, fmt.Errorf("publishing zone: %w", err)
	}

	clientFor := func(kind models.SourceKind, opts client.Options) client.Interface {
		if c, ok := o.clients[kind]; ok {
			return c
		}
		return client.New(opts)
	}

	sources := []tide.Source{
		mareeinfo.New(
			clientFor(models.SourceMareeInfo, client.Options{BaseURL: cfg.MareeInfoBaseURL, Timeout: cfg.HTTPTimeout}),
			mareeinfo.WithClock(o.clock),
			mareeinfo.WithMetrics(metrics),
		),
		horaire.New(
			clientFor(models.SourceHoraire, horaire.ClientOptions(cfg.HoraireBaseURL, cfg.HTTPTimeout)),
			horaire.WithClock(o.clock),
			horaire.WithMetrics(metrics),
		),
		worldtides.New(
			clientFor(models.SourceWorldTides, client.Options{BaseURL: cfg.WorldTidesBaseURL, Timeout: cfg.HTTPTimeout}),
			worldtides.WithClock(o.clock),
			worldtides.WithMetrics(metrics),
			worldtides.WithCoefficients(cfg.WorldTidesCoefficients),
			worldtides.WithFallbackZone(publishing),
		),
	}

	a := &App{
		Config:     cfg,
		Metrics:    metrics,
		Zones:      zones,
		Clock:      o.clock,
		Encoder:    calendar.NewEncoder(calendar.WithDuration(cfg.EventDuration)),
		registries: make(map[models.SourceKind]*registry.Registry, len(sources)),
	}

	backends := make([]tide.Backend, 0, len(sources))
	for _, src := range sources {
		reg, err := registry.ForSource(src.Kind())
		if err != nil {
			return nil, err
		}
		a.registries[src.Kind()] = reg
		backends = append(backends, tide.Backend{Source: src, Registry: reg})
	}

	a.Service, err = tide.NewService(zones, timezone.NewNormalizer(publishing), a.Encoder, backends,
		tide.WithDefaultSource(cfg.Source),
		tide.WithDefaultZone(cfg.Timezone),
		tide.WithCredentials(tide.Credentials{APIKey: cfg.WorldTidesAPIKey}),
		tide.WithMetrics(metrics),
		tide.WithClock(o.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tide service: %w", err)
	}

	log.Debug().
		Str("default_source", string(cfg.Source)).
		Str("timezone", cfg.Timezone).
		Dur("http_timeout", cfg.HTTPTimeout).
		Bool("worldtides_key", cfg.WorldTidesAPIKey != "").
		Msg("application wired")
	return a, nil
}

// Registry returns the registry for kind, or the default source's one when
// kind is empty.
func (a *App) Registry(kind models.SourceKind) (*registry.Registry, error) {
	if kind == "" {
		kind = a.Service.DefaultSource()
	}
	reg, ok := a.registries[kind]
	if !ok {
		return nil, tide.NewInvalidSelectionError(fmt.Sprintf("source de données inconnue : %q", kind))
	}
	return reg, nil
}

// Zone loads name, or the configured calendar zone when name is empty.
func (a *App) Zone(name string) (*time.Location, error) {
	if name == "" {
		name = a.Config.Timezone
	}
	loc, err := a.Zones.Load(name)
	if err != nil {
		return nil, tide.NewInvalidSelectionError(fmt.Sprintf("fuseau horaire inconnu : %q", name))
	}
	return loc, nil
}

// Sources lists the wired source kinds, sorted.
func (a *App) Sources() []models.SourceKind {
	out := make([]models.SourceKind, 0, len(a.registries))
	for k := range a.registries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

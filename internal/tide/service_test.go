package tide

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
)

type mockSource struct {
	kind     models.SourceKind
	policy   SpanPolicy
	needsKey bool
	events   []models.TideEvent
	err      error

	calls    int
	lastOpts FetchOptions
}

func (m *mockSource) Kind() models.SourceKind   { return m.kind }
func (m *mockSource) Policy() SpanPolicy        { return m.policy }
func (m *mockSource) RequiresCredentials() bool { return m.needsKey }

func (m *mockSource) FetchRange(_ context.Context, _ models.SourceKey, _ models.DateRange, opts FetchOptions) ([]models.TideEvent, error) {
	m.calls++
	m.lastOpts = opts
	return m.events, m.err
}

type mockRegistry struct {
	keys map[string]models.SourceKey
}

func (m *mockRegistry) Resolve(name string) (models.SourceKey, error) {
	if key, ok := m.keys[name]; ok {
		return key, nil
	}
	return models.SourceKey{}, NewInvalidSelectionError(fmt.Sprintf("lieu inconnu : %q", name))
}

func (m *mockRegistry) Locations() []models.Location { return nil }

type stdZones struct{}

func (stdZones) Load(name string) (*time.Location, error) { return time.LoadLocation(name) }

type utcLocalizer struct{}

func (utcLocalizer) Localize(events []models.TideEvent, target *time.Location) []models.TideEvent {
	out := make([]models.TideEvent, len(events))
	for i, ev := range events {
		out[i] = ev.WithCivil(ev.Observed.In(target))
	}
	return out
}

type mockEncoder struct {
	calls int
}

func (m *mockEncoder) Encode(events []models.TideEvent, label string, _ *time.Location) ([]byte, error) {
	m.calls++
	return []byte(fmt.Sprintf("%s:%d", label, len(events))), nil
}

func (m *mockEncoder) Filename(label string, r models.DateRange) string {
	return label + "_" + r.String() + ".ics"
}

func (m *mockEncoder) ContentType() string { return "text/calendar; charset=utf-8" }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleEvents() []models.TideEvent {
	return []models.TideEvent{
		{Observed: time.Date(2025, 7, 4, 4, 12, 0, 0, time.UTC), Type: models.TideTypeHigh, Height: 5.1, Source: models.SourceWorldTides},
		{Observed: time.Date(2025, 7, 4, 10, 30, 0, 0, time.UTC), Type: models.TideTypeLow, Height: 1.3, Source: models.SourceWorldTides},
	}
}

type fixture struct {
	service  *Service
	mareeA   *mockSource
	tidesC   *mockSource
	encoder  *mockEncoder
	metrics  *observability.Metrics
	registry *mockRegistry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		mareeA: &mockSource{
			kind:   models.SourceMareeInfo,
			policy: SpanPolicy{HardMaxDays: 60},
			events: sampleEvents(),
		},
		tidesC: &mockSource{
			kind:     models.SourceWorldTides,
			policy:   SpanPolicy{SoftMaxDays: 30},
			needsKey: true,
			events:   sampleEvents(),
		},
		encoder: &mockEncoder{},
		metrics: observability.NewMetricsForTesting(),
		registry: &mockRegistry{keys: map[string]models.SourceKey{
			"Brest": {Kind: models.SourceMareeInfo, SiteID: "82"},
		}},
	}
	coords := &mockRegistry{keys: map[string]models.SourceKey{
		"Brest": {Kind: models.SourceWorldTides, Coordinates: &models.Coordinates{Latitude: 48.38, Longitude: -4.49}},
	}}

	opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	svc, err := NewService(stdZones{}, utcLocalizer{}, f.encoder, []Backend{
		{Source: f.mareeA, Registry: f.registry},
		{Source: f.tidesC, Registry: coords},
	}, opts...)
	require.NoError(t, err)
	f.service = svc
	return f
}

func TestGenerateSuccess(t *testing.T) {
	f := newFixture(t)

	var stages []Stage
	res, err := f.service.Generate(context.Background(), Request{
		Location: "Brest",
		Dates:    []time.Time{date(2025, 7, 4), date(2025, 7, 5)},
		Zone:     "Europe/Paris",
		OnStage:  func(s Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, StageReady, res.Stage)
	assert.Equal(t, []Stage{StageValidating, StageFetching, StageNormalizing, StageEncoding, StageReady}, stages)
	assert.Equal(t, models.SourceMareeInfo, res.Source)
	assert.Equal(t, "82", res.Key.SiteID)
	assert.Equal(t, 2, res.Range.Days())
	assert.Equal(t, "Brest:2", string(res.Payload))
	assert.Equal(t, "Brest_2025-07-04_2025-07-05.ics", res.Filename)
	assert.Equal(t, "text/calendar; charset=utf-8", res.ContentType)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Events, 2)
	assert.Equal(t, 6, res.Events[0].Instant().Hour(), "04:12 UTC is 06:12 CEST")
	assert.Equal(t, "Europe/Paris", f.mareeA.lastOpts.Zone.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Generations.WithLabelValues("mareeinfo", "ok")))
}

func TestGenerateValidationHappensBeforeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantKind ErrorKind
	}{
		{
			name:     "placeholder selection",
			req:      Request{Location: "--- MANCHE / NORD ---", Dates: []time.Time{date(2025, 7, 1), date(2025, 7, 2)}},
			wantKind: KindInvalidSelection,
		},
		{
			name:     "unknown source",
			req:      Request{Location: "Brest", Source: "shom", Dates: []time.Time{date(2025, 7, 1), date(2025, 7, 2)}},
			wantKind: KindInvalidSelection,
		},
		{
			name:     "single date",
			req:      Request{Location: "Brest", Dates: []time.Time{date(2025, 7, 1)}},
			wantKind: KindInvalidDateRange,
		},
		{
			name:     "reversed dates",
			req:      Request{Location: "Brest", Dates: []time.Time{date(2025, 7, 2), date(2025, 7, 1)}},
			wantKind: KindInvalidDateRange,
		},
		{
			name:     "61 days on maree.info",
			req:      Request{Location: "Brest", Dates: []time.Time{date(2025, 1, 1), date(2025, 3, 2)}},
			wantKind: KindInvalidDateRange,
		},
		{
			name:     "missing key",
			req:      Request{Location: "Brest", Source: models.SourceWorldTides, Dates: []time.Time{date(2025, 7, 1), date(2025, 7, 2)}},
			wantKind: KindMissingCredentials,
		},
		{
			name:     "blank key",
			req:      Request{Location: "Brest", Source: models.SourceWorldTides, APIKey: "   ", Dates: []time.Time{date(2025, 7, 1), date(2025, 7, 2)}},
			wantKind: KindMissingCredentials,
		},
		{
			name:     "malformed key",
			req:      Request{Location: "Brest", Source: models.SourceWorldTides, APIKey: "abc def", Dates: []time.Time{date(2025, 7, 1), date(2025, 7, 2)}},
			wantKind: KindMissingCredentials,
		},
		{
			name:     "unknown zone",
			req:      Request{Location: "Brest", Zone: "Mars/Olympus", Dates: []time.Time{date(2025, 7, 1), date(2025, 7, 2)}},
			wantKind: KindInvalidSelection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			var stages []Stage
			tt.req.OnStage = func(s Stage) { stages = append(stages, s) }
			res, err := f.service.Generate(context.Background(), tt.req)

			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Equal(t, 0, f.mareeA.calls)
			assert.Equal(t, 0, f.tidesC.calls)
			assert.Equal(t, 0, f.encoder.calls)
			assert.Equal(t, []Stage{StageValidating, StageFailed}, stages)

			var tideErr *Error
			require.ErrorAs(t, err, &tideErr)
			assert.Equal(t, StageValidating, tideErr.Stage)
			assert.NotEmpty(t, UserMessage(err))
		})
	}
}

func TestGenerateSpanBoundaries(t *testing.T) {
	t.Run("60 days accepted on maree.info", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.service.Generate(context.Background(), Request{
			Location: "Brest",
			Dates:    []time.Time{date(2025, 1, 1), date(2025, 3, 1)},
		})
		require.NoError(t, err)
		assert.Equal(t, 60, res.Range.Days())
		assert.Empty(t, res.Warnings)
	})

	t.Run("45 days warns on worldtides", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.service.Generate(context.Background(), Request{
			Location: "Brest",
			Source:   models.SourceWorldTides,
			APIKey:   "  secret-key  ",
			Dates:    []time.Time{date(2025, 7, 1), date(2025, 8, 14)},
		})
		require.NoError(t, err)
		assert.Equal(t, 45, res.Range.Days())
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "45 jours")
		assert.Equal(t, 1, f.tidesC.calls)
		assert.Equal(t, "secret-key", f.tidesC.lastOpts.Credentials.APIKey)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SpanWarnings.WithLabelValues("worldtides")))
	})
}

func TestGenerateUsesDefaultCredentials(t *testing.T) {
	f := newFixture(t, WithCredentials(Credentials{APIKey: "env-key"}), WithDefaultSource(models.SourceWorldTides))

	_, err := f.service.Generate(context.Background(), Request{
		Location: "Brest",
		Dates:    []time.Time{date(2025, 7, 1), date(2025, 7, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, "env-key", f.tidesC.lastOpts.Credentials.APIKey)

	_, err = f.service.Generate(context.Background(), Request{
		Location: "Brest",
		APIKey:   "override",
		Dates:    []time.Time{date(2025, 7, 1), date(2025, 7, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, "override", f.tidesC.lastOpts.Credentials.APIKey)
}

func TestGenerateNoData(t *testing.T) {
	f := newFixture(t)
	f.mareeA.events = nil

	res, err := f.service.Generate(context.Background(), Request{
		Location: "Brest",
		Dates:    []time.Time{date(2025, 7, 1), date(2025, 7, 3)},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, 0, f.encoder.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Generations.WithLabelValues("mareeinfo", "NoData")))
}

func TestGenerateDropsInvalidEvents(t *testing.T) {
	f := newFixture(t)
	f.mareeA.events = append(sampleEvents(), models.TideEvent{
		Observed: time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC),
		Type:     models.TideTypeLow,
		Height:   -0.4,
	})

	res, err := f.service.Generate(context.Background(), Request{
		Location: "Brest",
		Dates:    []time.Time{date(2025, 7, 4), date(2025, 7, 4)},
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 2)
}

func TestGenerateUpstreamFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
	}{
		{name: "typed upstream error", err: NewUpstreamUnavailableError("source indisponible", errors.New("HTTP 503")), wantKind: KindUpstreamUnavailable},
		{name: "format error", err: NewUpstreamFormatError("page illisible", nil), wantKind: KindUpstreamFormat},
		{name: "deadline", err: fmt.Errorf("fetching page: %w", context.DeadlineExceeded), wantKind: KindUpstreamUnavailable},
		{name: "untyped error", err: errors.New("boom"), wantKind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mareeA.err = tt.err

			_, err := f.service.Generate(context.Background(), Request{
				Location: "Brest",
				Dates:    []time.Time{date(2025, 7, 1), date(2025, 7, 2)},
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))

			var tideErr *Error
			require.ErrorAs(t, err, &tideErr)
			assert.Equal(t, StageFetching, tideErr.Stage)
			assert.Contains(t, err.Error(), "FETCHING")
		})
	}
}

func TestGeneratePassesProgress(t *testing.T) {
	f := newFixture(t)

	var called bool
	_, err := f.service.Generate(context.Background(), Request{
		Location: "Brest",
		Dates:    []time.Time{date(2025, 7, 1), date(2025, 7, 2)},
		Progress: func(done, total int) { called = true },
	})
	require.NoError(t, err)
	require.NotNil(t, f.mareeA.lastOpts.Progress)
	f.mareeA.lastOpts.Progress(1, 2)
	assert.True(t, called)
}

func TestNewServiceRequiresBackends(t *testing.T) {
	_, err := NewService(stdZones{}, utcLocalizer{}, &mockEncoder{}, nil)
	assert.Error(t, err)

	_, err = NewService(stdZones{}, utcLocalizer{}, &mockEncoder{}, []Backend{
		{Source: &mockSource{kind: models.SourceHoraire}, Registry: &mockRegistry{}},
	}, WithDefaultSource(models.SourceWorldTides))
	assert.Error(t, err)
}

func TestErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewUpstreamFormatError("quota dépassé", errors.New("raw")))

	assert.ErrorIs(t, err, ErrUpstreamFormat)
	assert.NotErrorIs(t, err, ErrNoData)
	assert.Equal(t, "quota dépassé", UserMessage(err))
	assert.Equal(t, KindUpstreamFormat, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

package mareeinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
	"github.com/bbernstein/maree/internal/tide"
	"github.com/bbernstein/maree/pkg/http/client"
)

const simpleDay = `<table id="MareeJours">
<tr><td><b>06h12</b></td><td><b>4,50m</b></td><td><b>95</b></td></tr>
<tr><td>12h30</td><td>1,20m</td><td></td></tr>
</table>`

func day(d int) time.Time {
	return time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC)
}

func dateRange(t *testing.T, from, to int) models.DateRange {
	t.Helper()
	r, err := models.NewDateRange(day(from), day(to))
	require.NoError(t, err)
	return r
}

var brest = models.SourceKey{Kind: models.SourceMareeInfo, SiteID: "82"}

// advanceDelays releases every politeness wait until ctx is done.
func advanceDelays(ctx context.Context, clock *clockwork.FakeClock) {
	go func() {
		for {
			if err := clock.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			clock.Advance(PolitenessDelay)
		}
	}()
}

func TestFetchRange(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
		agents   []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.Path+"?"+r.URL.RawQuery)
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		_, _ = w.Write([]byte(simpleDay))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	advanceDelays(ctx, clock)

	metrics := observability.NewMetricsForTesting()
	src := New(client.New(client.Options{BaseURL: server.URL}), WithClock(clock), WithMetrics(metrics))

	var progress [][2]int
	events, err := src.FetchRange(ctx, brest, dateRange(t, 4, 6), tide.FetchOptions{
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/82?d=20250704", "/82?d=20250705", "/82?d=20250706"}, requests)
	for _, ua := range agents {
		assert.Equal(t, client.BrowserUserAgent, ua)
	}
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

	require.Len(t, events, 6)
	high := events[0]
	assert.Equal(t, time.Date(2025, 7, 4, 6, 12, 0, 0, time.UTC), high.Observed)
	assert.True(t, high.Naive)
	assert.Equal(t, models.TideTypeHigh, high.Type)
	assert.Equal(t, models.ClassificationTypographic, high.Classification)
	assert.Equal(t, 95, high.Coefficient.Value)
	assert.Equal(t, models.SourceMareeInfo, high.Source)

	low := events[1]
	assert.Equal(t, models.TideTypeLow, low.Type)
	assert.Equal(t, models.ClassificationFallback, low.Classification)
	assert.False(t, low.Coefficient.Valid)

	assert.Equal(t, day(6).Day(), events[5].Observed.Day())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.UpstreamRequests.WithLabelValues("mareeinfo", "success")))
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.EventsParsed.WithLabelValues("mareeinfo")))
}

func TestFetchRangeWaitsBetweenRequests(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(simpleDay))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock := clockwork.NewFakeClock()
	src := New(client.New(client.Options{BaseURL: server.URL}), WithClock(clock))

	type result struct {
		events []models.TideEvent
		err    error
	}
	out := make(chan result, 1)
	go func() {
		events, err := src.FetchRange(ctx, brest, dateRange(t, 1, 2), tide.FetchOptions{})
		out <- result{events, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(PolitenessDelay - time.Millisecond)
	assert.Equal(t, int32(1), hits.Load(), "second request must wait for the full delay")

	clock.Advance(time.Millisecond)
	res := <-out
	require.NoError(t, res.err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Len(t, res.events, 4)
}

func TestFetchRangeAbsorbsDayFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("d") {
		case "20250703":
			// longer than the client timeout
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte(simpleDay))
		case "20250704":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "20250705":
			_, _ = w.Write([]byte(`<html><body>nouvelle mise en page</body></html>`))
		default:
			_, _ = w.Write([]byte(simpleDay))
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	advanceDelays(ctx, clock)

	metrics := observability.NewMetricsForTesting()
	httpClient := client.New(client.Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	src := New(httpClient, WithClock(clock), WithMetrics(metrics))

	events, err := src.FetchRange(ctx, brest, dateRange(t, 1, 6), tide.FetchOptions{})
	require.NoError(t, err)

	days := map[int]int{}
	for _, ev := range events {
		days[ev.Observed.Day()]++
	}
	assert.Equal(t, map[int]int{1: 2, 2: 2, 6: 2}, days)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamRequests.WithLabelValues("mareeinfo", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamRequests.WithLabelValues("mareeinfo", "status")))
}

func TestFetchRangeAllDaysFailYieldsNoEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	advanceDelays(ctx, clock)

	src := New(client.New(client.Options{BaseURL: server.URL}), WithClock(clock))
	events, err := src.FetchRange(ctx, brest, dateRange(t, 1, 3), tide.FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFetchRangeCancelled(t *testing.T) {
	src := New(&client.Client{GetFunc: func(ctx context.Context, path string) (*client.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.FetchRange(ctx, brest, dateRange(t, 1, 2), tide.FetchOptions{})
	require.Error(t, err)
	assert.Equal(t, tide.KindUpstreamUnavailable, tide.KindOf(err))
}

func TestFetchRangeRequiresSiteID(t *testing.T) {
	src := New(&client.Client{})
	_, err := src.FetchRange(context.Background(), models.SourceKey{Kind: models.SourceMareeInfo}, dateRange(t, 1, 1), tide.FetchOptions{})
	assert.Equal(t, tide.KindInvalidSelection, tide.KindOf(err))
}

func TestPolicy(t *testing.T) {
	src := New(&client.Client{})
	assert.Equal(t, models.SourceMareeInfo, src.Kind())
	assert.Equal(t, 60, src.Policy().HardMaxDays)
	assert.Zero(t, src.Policy().SoftMaxDays)
	assert.False(t, src.RequiresCredentials())
}

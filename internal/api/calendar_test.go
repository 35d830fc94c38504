package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/registry"
	"github.com/bbernstein/maree/internal/tide"
)

type mockGenerator struct {
	requests []tide.Request
	result   *tide.Result
	err      error
}

func (m *mockGenerator) Generate(_ context.Context, req tide.Request) (*tide.Result, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	res.Location = req.Location
	return &res, nil
}

type mockLocator struct{}

func (mockLocator) Registry(kind models.SourceKind) (*registry.Registry, error) {
	if kind == "" {
		kind = models.SourceMareeInfo
	}
	if _, err := models.ParseSourceKind(string(kind)); err != nil {
		return nil, tide.NewInvalidSelectionError(err.Error())
	}
	return registry.ForSource(kind)
}

func (mockLocator) Zone(name string) (*time.Location, error) {
	if name == "" {
		name = "Europe/Paris"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, tide.NewInvalidSelectionError("fuseau horaire inconnu")
	}
	return loc, nil
}

func okResult() *tide.Result {
	return &tide.Result{
		Source:      models.SourceMareeInfo,
		Zone:        time.UTC,
		Payload:     []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"),
		Filename:    "marees_brest_2025-07-04_2025-07-11.ics",
		ContentType: "text/calendar; charset=utf-8",
	}
}

func TestCalendarHandler(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 15, 30, 0, 0, time.UTC))

	tests := []struct {
		name           string
		params         map[string]string
		err            error
		expectedStatus int
		check          func(t *testing.T, req tide.Request, resp events.APIGatewayProxyResponse)
	}{
		{
			name:           "defaults to a week from today",
			params:         map[string]string{"location": "Brest"},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, req tide.Request, resp events.APIGatewayProxyResponse) {
				assert.Equal(t, "Brest", req.Location)
				require.Len(t, req.Dates, 2)
				assert.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), req.Dates[0])
				assert.Equal(t, time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC), req.Dates[1])
				assert.Equal(t, "text/calendar; charset=utf-8", resp.Headers["Content-Type"])
				assert.Contains(t, resp.Headers["Content-Disposition"], "marees_brest")
			},
		},
		{
			name: "explicit parameters are passed through",
			params: map[string]string{
				"location": "Brest",
				"start":    "01/08/2025",
				"end":      "2025-08-03",
				"source":   "worldtides",
				"tz":       "Indian/Reunion",
				"key":      "secret",
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, req tide.Request, _ events.APIGatewayProxyResponse) {
				assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), req.Dates[0])
				assert.Equal(t, time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC), req.Dates[1])
				assert.Equal(t, models.SourceWorldTides, req.Source)
				assert.Equal(t, "Indian/Reunion", req.Zone)
				assert.Equal(t, "secret", req.APIKey)
			},
		},
		{
			name:           "nearest port from coordinates",
			params:         map[string]string{"lat": "48.39", "lon": "-4.49"},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, req tide.Request, _ events.APIGatewayProxyResponse) {
				assert.Equal(t, "Brest", req.Location)
			},
		},
		{
			name:           "json format",
			params:         map[string]string{"location": "Brest", "format": "json"},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, _ tide.Request, resp events.APIGatewayProxyResponse) {
				var body TidesResponse
				require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
				assert.Equal(t, "tides", body.ResponseType)
				assert.Equal(t, "Brest", body.Location)
			},
		},
		{
			name:           "pipeline error keeps its kind",
			params:         map[string]string{"location": "BRETAGNE"},
			err:            tide.NewInvalidSelectionError("veuillez sélectionner une ville dans la liste (pas une région)"),
			expectedStatus: http.StatusBadRequest,
			check: func(t *testing.T, _ tide.Request, resp events.APIGatewayProxyResponse) {
				var body ErrorResponse
				require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
				assert.Equal(t, tide.KindInvalidSelection, body.Kind)
			},
		},
		{
			name:           "missing key",
			params:         map[string]string{"location": "Brest", "source": "worldtides"},
			err:            tide.NewMissingCredentialsError("clé API worldtides.info manquante"),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{result: okResult(), err: tt.err}
			h := NewCalendarHandler(gen, mockLocator{}, clock)

			resp, err := h.HandleRequest(context.Background(), events.APIGatewayProxyRequest{QueryStringParameters: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			require.Len(t, gen.requests, 1)
			if tt.check != nil {
				tt.check(t, gen.requests[0], resp)
			}
		})
	}
}

func TestCalendarHandlerRejectsBeforeGenerating(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		status int
	}{
		{"no location", map[string]string{}, http.StatusBadRequest},
		{"unknown source", map[string]string{"location": "Brest", "source": "shom"}, http.StatusBadRequest},
		{"bad start", map[string]string{"location": "Brest", "start": "demain", "end": "05/07/2025"}, http.StatusBadRequest},
		{"bad end", map[string]string{"location": "Brest", "start": "04/07/2025", "end": "32/01/2025"}, http.StatusBadRequest},
		{"start without end", map[string]string{"location": "Brest", "start": "04/07/2025"}, http.StatusBadRequest},
		{"end without start", map[string]string{"location": "Brest", "end": "05/07/2025"}, http.StatusBadRequest},
		{"unknown zone", map[string]string{"location": "Brest", "tz": "Nowhere/Land"}, http.StatusBadRequest},
		{"bad coordinates", map[string]string{"lat": "95", "lon": "0"}, http.StatusBadRequest},
		{"unknown format", map[string]string{"location": "Brest", "format": "csv"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{result: okResult()}
			h := NewCalendarHandler(gen, mockLocator{}, clockwork.NewFakeClock())

			resp, err := h.HandleRequest(context.Background(), events.APIGatewayProxyRequest{QueryStringParameters: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.name != "unknown format" {
				assert.Empty(t, gen.requests)
			}
		})
	}
}

func TestPeriod(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	// 01:30 in Paris, still the previous day in UTC
	now := time.Date(2025, 7, 4, 23, 30, 0, 0, time.UTC)

	got, err := Period(now, paris, "", "")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC),
	}, got)

	got, err = Period(now, time.UTC, "", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), got[0])

	got, err = Period(now, paris, "01/08/2025", "2025-08-03")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC),
	}, got)

	for _, pair := range [][2]string{{"01/08/2025", ""}, {"", "03/08/2025"}, {"demain", "03/08/2025"}} {
		_, err := Period(now, paris, pair[0], pair[1])
		assert.ErrorIs(t, err, tide.ErrInvalidDateRange, pair)
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/registry"
	"github.com/bbernstein/maree/internal/tide"
)

// DefaultPeriodDays is the span after today used when a request names no dates.
const DefaultPeriodDays = 7

type Generator interface {
	Generate(ctx context.Context, req tide.Request) (*tide.Result, error)
}

type Locator interface {
	Registry(kind models.SourceKind) (*registry.Registry, error)
	// Zone loads a zone by name, the default calendar zone when empty.
	Zone(name string) (*time.Location, error)
}

type CalendarHandler struct {
	generator Generator
	locator   Locator
	clock     clockwork.Clock
}

func NewCalendarHandler(generator Generator, locator Locator, clock clockwork.Clock) *CalendarHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CalendarHandler{
		generator: generator,
		locator:   locator,
		clock:     clock,
	}
}

func (h *CalendarHandler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	params := request.QueryStringParameters
	log.Info().Str("location", params["location"]).Str("source", params["source"]).Msg("Handling calendar request")

	kind := models.SourceKind(params["source"])
	if kind != "" {
		if _, err := models.ParseSourceKind(string(kind)); err != nil {
			return Failure(tide.NewInvalidSelectionError("source de données inconnue : " + string(kind)))
		}
	}

	location, err := h.location(params, kind)
	if err != nil {
		return Failure(err)
	}

	dates, err := h.dates(params)
	if err != nil {
		return Failure(err)
	}

	res, err := h.generator.Generate(ctx, tide.Request{
		Location: location,
		Dates:    dates,
		Source:   kind,
		Zone:     params["tz"],
		APIKey:   params["key"],
	})
	if err != nil {
		return Failure(err)
	}

	switch params["format"] {
	case "", "ics":
		return Calendar(res)
	case "json":
		return Success(NewTidesResponse(res))
	default:
		return Error("format inconnu : "+params["format"], http.StatusBadRequest)
	}
}

// location picks the named location, or the nearest port to lat/lon.
func (h *CalendarHandler) location(params map[string]string, kind models.SourceKind) (string, error) {
	if name, ok := params["location"]; ok {
		return name, nil
	}

	lat, lon, err := ParseCoordinates(params)
	if err != nil {
		var invalidCoordErr InvalidCoordinatesError
		if errors.As(err, &invalidCoordErr) {
			return "", tide.NewInvalidSelectionError(err.Error())
		}
		return "", tide.NewInvalidSelectionError("paramètres invalides")
	}
	if _, hasLat := params["lat"]; !hasLat {
		return "", tide.NewInvalidSelectionError("veuillez indiquer un lieu ou des coordonnées")
	}

	reg, err := h.locator.Registry(kind)
	if err != nil {
		return "", err
	}
	nearest, err := reg.FindNearest(lat, lon, 1)
	if err != nil {
		return "", tide.NewInvalidSelectionError(err.Error())
	}
	if len(nearest) == 0 {
		return "", tide.NewInvalidSelectionError("aucun port connu près de ces coordonnées")
	}
	return nearest[0].Name, nil
}

func (h *CalendarHandler) dates(params map[string]string) ([]time.Time, error) {
	zone, err := h.locator.Zone(params["tz"])
	if err != nil {
		return nil, err
	}
	return Period(h.clock.Now(), zone, params["start"], params["end"])
}

// Period parses start and end. With neither given it is today, in zone, to
// DefaultPeriodDays later; giving only one of them is an invalid range.
func Period(now time.Time, zone *time.Location, start, end string) ([]time.Time, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	switch {
	case start == "" && end == "":
		today := models.Date(now.In(zone))
		return []time.Time{today, today.AddDate(0, 0, DefaultPeriodDays)}, nil
	case start == "" || end == "":
		return nil, tide.NewInvalidRangeError("veuillez choisir une date de début et une date de fin", nil)
	}

	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	return []time.Time{from, to}, nil
}

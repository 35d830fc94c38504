package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/timezone"
)

const defaultNearestLimit = 5

type LocationsHandler struct {
	locator Locator
}

func NewLocationsHandler(locator Locator) *LocationsHandler {
	return &LocationsHandler{
		locator: locator,
	}
}

// HandleRequest lists the registry of one source, or the ports nearest to
// lat/lon when both are given.
func (h *LocationsHandler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	params := request.QueryStringParameters
	kind := models.SourceKind(params["source"])

	reg, err := h.locator.Registry(kind)
	if err != nil {
		return Failure(err)
	}
	if kind == "" {
		if sel := reg.Selectable(); len(sel) > 0 && sel[0].Key != nil {
			kind = sel[0].Key.Kind
		}
	}

	if name, ok := params["name"]; ok {
		loc, found := reg.Lookup(name)
		if !found {
			return Error("Location not found", http.StatusNotFound)
		}
		return Success(NewLocationsResponse(kind, []models.Location{loc}))
	}

	// Parse coordinates
	lat, lon, err := ParseCoordinates(params)
	if err != nil {
		var invalidCoordErr InvalidCoordinatesError
		if errors.As(err, &invalidCoordErr) {
			return Error(err.Error(), http.StatusBadRequest)
		}
		return Error("Invalid parameters", http.StatusBadRequest)
	}

	if _, hasLat := params["lat"]; !hasLat {
		if params["selectable"] == "true" {
			return Success(NewLocationsResponse(kind, reg.Selectable()))
		}
		return Success(NewLocationsResponse(kind, reg.Locations()))
	}

	limit := defaultNearestLimit
	if limitStr, ok := params["limit"]; ok {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil {
			limit = parsedLimit
		}
	}

	locations, err := reg.FindNearest(lat, lon, limit)
	if err != nil {
		return Error("Error finding locations", http.StatusInternalServerError)
	}
	return Success(NewLocationsResponse(kind, locations))
}

// HandleZones lists the time zones a calendar can be rendered in.
func HandleZones(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return Success(NewZonesResponse(timezone.Zones()))
}

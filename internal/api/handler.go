package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/tide"
)

type APIResponse struct {
	ResponseType string `json:"responseType"`
}

func (r APIResponse) GetResponseType() string {
	return r.ResponseType
}

type LocationsResponse struct {
	APIResponse
	Source    models.SourceKind `json:"source"`
	Locations []models.Location `json:"locations"`
}

type ZonesResponse struct {
	APIResponse
	Zones []string `json:"zones"`
}

// EventView is the JSON rendering of one localized tide event.
type EventView struct {
	Time           time.Time             `json:"time"`
	Date           string                `json:"date"`
	Clock          string                `json:"clock"`
	Type           models.TideType       `json:"type"`
	Label          string                `json:"label"`
	Height         float64               `json:"height"`
	Coefficient    *int                  `json:"coefficient,omitempty"`
	Classification models.Classification `json:"classification"`
}

type TidesResponse struct {
	APIResponse
	Location string            `json:"location"`
	Source   models.SourceKind `json:"source"`
	Zone     string            `json:"zone"`
	Start    string            `json:"start"`
	End      string            `json:"end"`
	Filename string            `json:"filename"`
	Warnings []string          `json:"warnings,omitempty"`
	Events   []EventView       `json:"events"`
}

type ErrorResponse struct {
	APIResponse
	Error string         `json:"error"`
	Kind  tide.ErrorKind `json:"kind,omitempty"`
	Stage tide.Stage     `json:"stage,omitempty"`
}

func NewLocationsResponse(kind models.SourceKind, locations []models.Location) *LocationsResponse {
	return &LocationsResponse{
		APIResponse: APIResponse{ResponseType: "locations"},
		Source:      kind,
		Locations:   locations,
	}
}

func NewZonesResponse(zones []string) *ZonesResponse {
	return &ZonesResponse{
		APIResponse: APIResponse{ResponseType: "zones"},
		Zones:       zones,
	}
}

func NewTidesResponse(res *tide.Result) *TidesResponse {
	out := &TidesResponse{
		APIResponse: APIResponse{ResponseType: "tides"},
		Location:    res.Location,
		Source:      res.Source,
		Start:       res.Range.Start.Format(isoLayout),
		End:         res.Range.End.Format(isoLayout),
		Filename:    res.Filename,
		Warnings:    res.Warnings,
		Events:      make([]EventView, 0, len(res.Events)),
	}
	if res.Zone != nil {
		out.Zone = res.Zone.String()
	}
	for _, ev := range res.Events {
		view := EventView{
			Time:           ev.Civil,
			Date:           ev.Civil.Format(frenchLayout),
			Clock:          ev.Civil.Format("15:04"),
			Type:           ev.Type,
			Label:          ev.Type.Label(),
			Height:         ev.Height,
			Classification: ev.Classification,
		}
		if ev.Coefficient.Valid {
			c := ev.Coefficient.Value
			view.Coefficient = &c
		}
		out.Events = append(out.Events, view)
	}
	return out
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		APIResponse: APIResponse{ResponseType: "error"},
		Error:       message,
	}
}

func headers(contentType string) map[string]string {
	return map[string]string{
		"Content-Type":                contentType,
		"Access-Control-Allow-Origin": "*",
	}
}

// Response helpers
func Success(body interface{}) (events.APIGatewayProxyResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Error("Internal Server Error", http.StatusInternalServerError)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    headers("application/json"),
		Body:       string(jsonBody),
	}, nil
}

func Error(message string, statusCode int) (events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(NewErrorResponse(message))

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers("application/json"),
		Body:       string(body),
	}, nil
}

// Failure renders a pipeline error with the status StatusFor picks and the
// user-facing message, never the technical cause.
func Failure(err error) (events.APIGatewayProxyResponse, error) {
	resp := NewErrorResponse(tide.UserMessage(err))
	resp.Kind = tide.KindOf(err)
	var te *tide.Error
	if errors.As(err, &te) {
		resp.Stage = te.Stage
	}
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}

	body, _ := json.Marshal(resp)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers("application/json"),
		Body:       string(body),
	}, nil
}

// Calendar returns the encoded payload as a download.
func Calendar(res *tide.Result) (events.APIGatewayProxyResponse, error) {
	h := headers(res.ContentType)
	h["Content-Disposition"] = fmt.Sprintf("attachment; filename=%q", res.Filename)
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    h,
		Body:       string(res.Payload),
	}, nil
}

// StatusFor maps an error kind to the HTTP status a surface should answer with.
func StatusFor(err error) int {
	switch tide.KindOf(err) {
	case tide.KindInvalidSelection, tide.KindInvalidDateRange:
		return http.StatusBadRequest
	case tide.KindMissingCredentials:
		return http.StatusUnauthorized
	case tide.KindUpstreamUnavailable, tide.KindUpstreamFormat:
		return http.StatusBadGateway
	case tide.KindNoData:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Parameter parsing helpers
func ParseCoordinates(params map[string]string) (float64, float64, error) {
	latStr, hasLat := params["lat"]
	lonStr, hasLon := params["lon"]

	if !hasLat || !hasLon {
		return 0, 0, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, err
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, err
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, InvalidCoordinatesError{}
	}

	return lat, lon, nil
}

type InvalidCoordinatesError struct{}

func (e InvalidCoordinatesError) Error() string {
	return "coordonnées invalides"
}

const (
	frenchLayout = "02/01/2006"
	isoLayout    = "2006-01-02"
)

// ParseDate accepts DD/MM/YYYY and YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{frenchLayout, isoLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, tide.NewInvalidRangeError(
		fmt.Sprintf("date illisible : %q (format attendu JJ/MM/AAAA)", s), nil)
}

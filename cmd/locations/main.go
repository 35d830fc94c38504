package main

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/api"
	"github.com/bbernstein/maree/internal/app"
	"github.com/bbernstein/maree/internal/config"
)

var locationsHandler *api.LocationsHandler

func setup() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	cfg.InitializeLogging()

	a, err := app.New(cfg, nil)
	if err != nil {
		return err
	}
	locationsHandler = api.NewLocationsHandler(a)
	log.Info().Str("env", cfg.Environment).Msg("locations lambda ready")
	return nil
}

// handleRequest serves the registry listing, and the zone list under a
// path ending in /zones.
func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log.Info().Str("path", request.Path).Msg("Handling locations request")
	if strings.HasSuffix(strings.TrimRight(request.Path, "/"), "/zones") {
		return api.HandleZones(ctx, request)
	}
	return locationsHandler.HandleRequest(ctx, request)
}

func main() {
	if err := setup(); err != nil {
		log.Fatal().Err(err).Msg("initializing locations lambda")
	}
	lambda.Start(handleRequest)
}

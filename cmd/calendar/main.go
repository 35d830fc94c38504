package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/api"
	"github.com/bbernstein/maree/internal/app"
	"github.com/bbernstein/maree/internal/config"
)

var calendarHandler *api.CalendarHandler

func setup() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	cfg.InitializeLogging()

	// nothing scrapes a Lambda, so it runs without metrics
	a, err := app.New(cfg, nil)
	if err != nil {
		return err
	}
	calendarHandler = api.NewCalendarHandler(a.Service, a, a.Clock)
	log.Info().Str("env", cfg.Environment).Str("source", string(cfg.Source)).Msg("calendar lambda ready")
	return nil
}

func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log.Info().Msg("Handling calendar request")
	return calendarHandler.HandleRequest(ctx, request)
}

func main() {
	if err := setup(); err != nil {
		log.Fatal().Err(err).Msg("initializing calendar lambda")
	}
	lambda.Start(handleRequest)
}

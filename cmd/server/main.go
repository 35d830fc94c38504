package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/api"
	"github.com/bbernstein/maree/internal/app"
	"github.com/bbernstein/maree/internal/config"
	"github.com/bbernstein/maree/internal/observability"
)

// withFormat pins the format parameter so each route has one output type.
func withFormat(format string, fn api.LambdaFunc) api.LambdaFunc {
	return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		params := make(map[string]string, len(request.QueryStringParameters)+1)
		for k, v := range request.QueryStringParameters {
			params[k] = v
		}
		params["format"] = format
		request.QueryStringParameters = params
		return fn(ctx, request)
	}
}

func newRouter(a *app.App, gatherer prometheus.Gatherer) http.Handler {
	calendar := api.NewCalendarHandler(a.Service, a, a.Clock)
	locations := api.NewLocationsHandler(a)

	r := mux.NewRouter().StrictSlash(true)
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/locations", api.Adapt(locations.HandleRequest)).Methods(http.MethodGet)
	v1.HandleFunc("/zones", api.Adapt(api.HandleZones)).Methods(http.MethodGet)
	v1.HandleFunc("/tides", api.Adapt(withFormat("json", calendar.HandleRequest))).Methods(http.MethodGet)
	v1.HandleFunc("/calendar.ics", api.Adapt(withFormat("ics", calendar.HandleRequest))).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return api.Instrument(a.Metrics, r)
}

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("reading configuration")
	}
	cfg.InitializeLogging()

	a, err := app.New(cfg, observability.NewMetrics())
	if err != nil {
		log.Fatal().Err(err).Msg("initializing application")
	}

	srv := &http.Server{
		Handler:      newRouter(a, prometheus.DefaultGatherer),
		Addr:         cfg.HTTPAddr,
		WriteTimeout: 2 * time.Minute,
		ReadTimeout:  15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Listening and serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

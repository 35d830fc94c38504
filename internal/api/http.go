package api

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/observability"
)

// LambdaFunc is the signature shared by every handler in this package.
type LambdaFunc func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Adapt serves a Lambda handler over net/http. Only the first value of each
// query parameter is kept, as API Gateway does for QueryStringParameters.
func Adapt(fn LambdaFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string, len(r.URL.Query()))
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		hdrs := make(map[string]string, len(r.Header))
		for k := range r.Header {
			hdrs[k] = r.Header.Get(k)
		}

		resp, err := fn(r.Context(), events.APIGatewayProxyRequest{
			HTTPMethod:            r.Method,
			Path:                  r.URL.Path,
			Headers:               hdrs,
			QueryStringParameters: params,
		})
		if err != nil {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("handler failed")
			resp, _ = Error("Internal Server Error", http.StatusInternalServerError)
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records the latency of every request served by next.
func Instrument(metrics *observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// panics in next are reported as 500 and re-thrown
		defer func() {
			if err := recover(); err != nil {
				metrics.ObserveRequest(r.Method, r.URL.Path, http.StatusInternalServerError, time.Since(started))
				panic(err)
			}
			metrics.ObserveRequest(r.Method, r.URL.Path, rec.status, time.Since(started))
		}()

		next.ServeHTTP(rec, r)
	})
}

package port

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/valyala/fasthttp"
)

const requestIDHeader = "X-Request-ID"

var (
	httpRequestsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "The total number of served HTTP requests",
	}, []string{
		"route", // The route pattern, e.g. /api/models/{id}; "unmatched" for unknown paths.
		"code",  // The response status code.
	})
	httpDurationMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Time spent serving HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// routeLabelKey is the user value the router stores the matched route pattern under.
const routeLabelKey = "route"

// withObservability tags the request with an id, then logs and measures it once served.
func withObservability(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		startedAt := time.Now()
		requestID := string(ctx.Request.Header.Peek(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Response.Header.Set(requestIDHeader, requestID)

		next(ctx)

		duration := time.Since(startedAt)
		route, _ := ctx.UserValue(routeLabelKey).(string)
		if route == "" {
			route = "unmatched"
		}
		statusCode := ctx.Response.StatusCode()
		httpRequestsMetric.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
		httpDurationMetric.WithLabelValues(route).Observe(duration.Seconds())

		attrs := []any{"method", string(ctx.Method()), "path", string(ctx.Path()), "status", statusCode,
			"duration", duration, "requestID", requestID}
		if statusCode >= fasthttp.StatusInternalServerError {
			slog.Warn("HTTP request failed.", attrs...)
		} else {
			slog.Debug("HTTP request served.", attrs...)
		}
	}
}

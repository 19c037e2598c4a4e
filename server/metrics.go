// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginsTotal     *prometheus.CounterVec
	logoutsTotal    prometheus.Counter
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capweb_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capweb_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capweb_logins_total",
				Help: "Total number of completed login callbacks by result",
			},
			[]string{"result"},
		),
		logoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "capweb_logouts_total",
				Help: "Total number of logouts of an authenticated session",
			},
		),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.loginsTotal,
		m.logoutsTotal,
	)
	return m
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument logs and counts every request routed by the server. Requests
// are labeled by route template so ids in paths don't create series.
func instrument(m *metrics, logger hclog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)

			route := unmatchedRoute
			if cur := mux.CurrentRoute(r); cur != nil {
				if tmpl, err := cur.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			m.requestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			args := []interface{}{"method", r.Method, "path", r.URL.Path, "status", rw.statusCode, "duration", elapsed}
			switch route {
			case healthzPath, metricsPath:
				logger.Debug("request", args...)
			default:
				logger.Info("request", args...)
			}
		})
	}
}

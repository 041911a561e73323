// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package middleware provides HTTP middleware shared by the agent's router.

Key Components:

  - RequestID: UUID-based request tracking, echoed in X-Request-ID and
    stored in the request context for logging.Ctx
  - PrometheusMetrics: request count, latency and in-flight instrumentation
    labelled by chi route pattern

Both are written against http.HandlerFunc and adapted to chi in the api
package:

	r.Use(chiMiddleware(middleware.PrometheusMetrics))

The websocket endpoint is mounted outside PrometheusMetrics because the
upgrade hijacks the connection.
*/
package middleware

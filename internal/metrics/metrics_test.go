// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		endpoint string
		status   string
	}{
		{"list records", "GET", "/api/v1/collections/{collection}/records", "200"},
		{"create record", "POST", "/api/v1/collections/{collection}/records", "201"},
		{"bad request", "PUT", "/api/v1/collections/{collection}/records/{id}", "400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := APIRequestsTotal.WithLabelValues(tt.method, tt.endpoint, tt.status)
			before := testutil.ToFloat64(c)
			RecordAPIRequest(tt.method, tt.endpoint, tt.status, 15*time.Millisecond)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("api_requests_total delta = %v, want 1", got)
			}
		})
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 2 {
		t.Errorf("active requests delta = %v, want 2", got)
	}
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active requests = %v, want %v", got, before)
	}
}

func TestRecordRateLimitHit(t *testing.T) {
	c := APIRateLimitHits.WithLabelValues("sync")
	before := testutil.ToFloat64(c)
	RecordRateLimitHit("sync")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("rate limit hits delta = %v, want 1", got)
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "abc123")
	SetBuildInfo("1.0.1", "def456")
	if n := testutil.CollectAndCount(BuildInfo); n != 1 {
		t.Errorf("build info series = %d, want 1", n)
	}
	if got := testutil.ToFloat64(BuildInfo.WithLabelValues("1.0.1", "def456")); got != 1 {
		t.Errorf("build info = %v, want 1", got)
	}
}

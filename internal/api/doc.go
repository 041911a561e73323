// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package api provides the agent's HTTP surface.

The chi router serves three kinds of traffic:

  - /api/v1: the JSON API used by pages (records, pending changes, sync,
    connectivity, updates and purge)
  - /ws and /metrics: the page event socket and Prometheus metrics
  - everything else: pages and assets, answered by the cache controller
    (network-first for documents, cache-first for assets)

Every /api/v1 response uses the models.APIResponse envelope. Its metadata
carries the connectivity state and the pending-change count so a page can
render the offline banner from any call.

# Endpoints

	GET    /api/v1/health/live
	GET    /api/v1/health/ready
	GET    /api/v1/status
	GET    /api/v1/collections/{collection}/records
	GET    /api/v1/collections/{collection}/records/{id}
	POST   /api/v1/collections/{collection}/records
	PUT    /api/v1/collections/{collection}/records/{id}
	DELETE /api/v1/collections/{collection}/records/{id}
	GET    /api/v1/pending
	POST   /api/v1/sync
	POST   /api/v1/connectivity
	POST   /api/v1/update/check
	POST   /api/v1/update/skip-waiting
	GET    /api/v1/purge
	POST   /api/v1/purge

Record listing accepts either index and value query parameters (exact
match on a secondary index) or order_by (every record that has the index,
in index order).
*/
package api

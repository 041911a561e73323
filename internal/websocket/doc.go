// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

/*
Package websocket bridges browser pages to the agent's message bus.

Pages and the agent only talk through messages. The hub keeps one Client
per open page; the Bridge forwards every worker event published on the
bus to all pages, and messages a page sends are published as page commands
tagged with the sending client's id.

	 bus: worker.events ──► Bridge ──► Hub ──► Client (page)
	 bus: page.commands ◄────────────── Hub ◄── Client (page)

Each client runs a read pump and a write pump. A client whose send buffer
is full is dropped rather than slowing the broadcast for everyone else.

Wire format is the messaging envelope: {"type": "...", "data": {...}}. A
page may also send {"type": "ping"} and receives {"type": "pong"}; those
never reach the bus.
*/
package websocket

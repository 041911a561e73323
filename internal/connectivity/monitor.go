// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

// Package connectivity tracks whether the remote data service is reachable.
//
// State changes are event driven: pages report ONLINE/OFFLINE, operators use
// the API, the sync driver reports transport failures, and an optional
// Prober polls a health endpoint. Subscribers receive every transition.
package connectivity

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

// Signal sources.
const (
	SourcePage      = "page"
	SourceAPI       = "api"
	SourceTransport = "transport"
	SourceProbe     = "probe"
	SourceStartup   = "startup"
)

var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connectivity_online",
		Help: "1 when the remote data service is considered reachable",
	})

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectivity_transitions_total",
			Help: "Connectivity transitions by target state and source",
		},
		[]string{"to", "source"},
	)
)

// Event is one transition.
type Event struct {
	Online bool
	Source string
	At     time.Time
}

// State is a snapshot of the monitor.
type State struct {
	Online     bool      `json:"online"`
	Source     string    `json:"source"`
	Since      time.Time `json:"since"`
	Transition int       `json:"transitions"`
}

// Monitor holds the Online/Offline state.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	source      string
	since       time.Time
	transitions int
	subs        map[int]chan Event
	nextSub     int
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(online bool) *Monitor {
	setGauge(online)
	return &Monitor{
		online: online,
		source: SourceStartup,
		since:  time.Now(),
		subs:   make(map[int]chan Event),
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// State returns a snapshot.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{Online: m.online, Source: m.source, Since: m.since, Transition: m.transitions}
}

// Set records a signal. It returns true when the state changed, in which
// case every subscriber is notified.
func (m *Monitor) Set(online bool, source string) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.source = source
	m.since = time.Now()
	m.transitions++
	ev := Event{Online: online, Source: source, At: m.since}
	subs := make([]chan Event, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	setGauge(online)
	transitionsTotal.WithLabelValues(stateName(online), source).Inc()
	logging.Info().Str("state", stateName(online)).Str("source", source).Msg("Connectivity changed")

	for _, ch := range subs {
		// Subscribers only need the latest state; drop the stale pending
		// event rather than block the signaller.
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return true
}

// Subscribe returns a channel of transitions and a function that cancels
// the subscription. The channel holds at most one undelivered event.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func stateName(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func setGauge(online bool) {
	if online {
		onlineGauge.Set(1)
	} else {
		onlineGauge.Set(0)
	}
}

// Package connectivity observes network reachability for the sync core. It
// tracks device connectivity, a tri-state internet reachability signal, and
// a restricted-mode flag set when the server rejects requests on policy
// grounds rather than being unreachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/thantzin/stockcount/backend/internal/logging"
)

// State is a snapshot of the monitor's view of the network.
type State struct {
	// IsOnline is device-level connectivity (an interface is up).
	IsOnline bool
	// IsInternetReachable is tri-state: nil means unknown. Public-internet
	// reachability checks are misleading against a LAN-hosted server, so
	// unknown is a first-class value here, not an error.
	IsInternetReachable *bool
	// ConnectionType is a free-form label (wifi, cellular, none).
	ConnectionType string
	// IsRestrictedMode is set when the server explicitly rejected a request
	// with a network policy code. Tracked separately from true offline.
	IsRestrictedMode bool
}

// OnlinePolicy decides whether write-path code should attempt the server
// given a state snapshot. Pluggable so the fail-open-on-unknown default can
// be swapped per deployment.
type OnlinePolicy func(State) bool

// FailOpenPolicy is the default: online when the device is connected and
// reachability is not known-false. Unknown reachability counts as online;
// a wasted request is recovered by the mutation queue, silently staying
// offline against a healthy LAN server is not.
func FailOpenPolicy(s State) bool {
	return s.IsOnline && (s.IsInternetReachable == nil || *s.IsInternetReachable)
}

// Listener receives state snapshots on every transition.
type Listener func(State)

// Monitor publishes network state to the sync engine and scheduler.
type Monitor struct {
	mu        sync.RWMutex
	state     State
	policy    OnlinePolicy
	listeners map[int]Listener
	nextID    int
}

// NewMonitor creates a Monitor with the given policy, or FailOpenPolicy when
// nil. The initial state assumes an online device with unknown reachability.
func NewMonitor(policy OnlinePolicy) *Monitor {
	if policy == nil {
		policy = FailOpenPolicy
	}
	return &Monitor{
		state:     State{IsOnline: true, ConnectionType: "unknown"},
		policy:    policy,
		listeners: make(map[int]Listener),
	}
}

// State returns the current snapshot.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EffectiveOnline applies the policy to the current state.
func (m *Monitor) EffectiveOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy(m.state) && !m.state.IsRestrictedMode
}

// SetNetworkState records a reachability update from the platform shell or
// the background probe. Any network transition clears restricted mode so the
// next request re-probes the server's policy instead of wedging the client
// offline permanently.
func (m *Monitor) SetNetworkState(isOnline bool, reachable *bool, connectionType string) {
	m.mu.Lock()

	prev := m.state
	m.state.IsOnline = isOnline
	m.state.IsInternetReachable = reachable
	m.state.ConnectionType = connectionType

	changed := prev.IsOnline != isOnline ||
		!equalTriState(prev.IsInternetReachable, reachable) ||
		prev.ConnectionType != connectionType

	if changed && m.state.IsRestrictedMode {
		m.state.IsRestrictedMode = false
		logging.Info("connectivity: restricted mode cleared on network transition")
	}

	snapshot := m.state
	var toNotify []Listener
	if changed {
		for _, l := range m.listeners {
			toNotify = append(toNotify, l)
		}
	}
	m.mu.Unlock()

	if changed {
		logging.Info("connectivity: network state changed",
			map[string]interface{}{
				"is_online":       isOnline,
				"reachable":       triStateLabel(reachable),
				"connection_type": connectionType,
			})
		for _, l := range toNotify {
			l(snapshot)
		}
	}
}

// MarkRestricted records a server-side policy rejection. The queue treats
// this identically to offline; the flag exists for diagnostics and to stop
// hammering a server that has already said no.
func (m *Monitor) MarkRestricted() {
	m.mu.Lock()
	already := m.state.IsRestrictedMode
	m.state.IsRestrictedMode = true
	m.mu.Unlock()

	if !already {
		logging.Warn("connectivity: entering restricted mode after policy rejection")
	}
}

// Subscribe registers a listener for state transitions and returns an
// unsubscribe function.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Probe checks reachability on demand. The platform shell usually feeds the
// monitor directly; the probe loop exists for headless deployments.
type Probe interface {
	Check(ctx context.Context) (isOnline bool, reachable *bool, connectionType string)
}

// Run polls the probe until the context is cancelled, feeding results into
// the monitor. The first check runs immediately.
func (m *Monitor) Run(ctx context.Context, probe Probe, interval time.Duration) {
	m.SetNetworkState(probe.Check(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetNetworkState(probe.Check(ctx))
		}
	}
}

// equalTriState compares two optional booleans by value.
func equalTriState(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// triStateLabel renders a tri-state bool for logging.
func triStateLabel(v *bool) string {
	if v == nil {
		return "unknown"
	}
	if *v {
		return "true"
	}
	return "false"
}

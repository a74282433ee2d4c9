// Package dispatch turns stored transport routes into machine-consumable
// transfer directives. It is a pure decision layer: no storage access, no
// I/O, no per-route state. The surrounding API layer aggregates directives
// into a poll response; re-delivery cadence is the transport's concern.
package dispatch

import (
	"conveyor/internal/models"
)

// ActionTransfer is the only directive action the remote executor knows.
const ActionTransfer = "transfer"

// Directive is one resolved transfer instruction, rebuilt fresh on every
// poll. Source and Dest are peripheral bus names local to the polling
// machine.
type Directive struct {
	RouteID    int64             `json:"route_id"`
	Action     string            `json:"action"`
	Source     string            `json:"source"`
	Dest       string            `json:"dest"`
	Filter     models.ItemFilter `json:"filter"`
	FilterKind models.FilterKind `json:"filter_kind"`
}

// Accepts reports whether the directive's filter admits an item identifier.
func (d Directive) Accepts(item string) bool {
	return d.Filter.Matches(item)
}

// Resolve maps a route onto a transfer directive for the polling machine.
// The second return is false when the route yields nothing for this poll:
// disabled routes, routes whose endpoints are not both on this machine's
// peripheral bus (transfers are bus-local), and routes with dangling
// peripheral references are all skipped rather than reported as errors, so
// one bad route never blocks the rest of the batch.
func Resolve(route models.Route, machineID int64) (Directive, bool) {
	if !route.Enabled {
		return Directive{}, false
	}
	if route.SourceName == "" || route.DestName == "" {
		return Directive{}, false
	}
	if route.SourceMachineID != machineID || route.DestMachineID != machineID {
		return Directive{}, false
	}

	return Directive{
		RouteID:    route.ID,
		Action:     ActionTransfer,
		Source:     route.SourceName,
		Dest:       route.DestName,
		Filter:     route.Filter,
		FilterKind: route.Filter.Kind(),
	}, true
}

// ResolveAll resolves a batch of routes for one machine, preserving input
// order and dropping skips.
func ResolveAll(routes []models.Route, machineID int64) []Directive {
	directives := make([]Directive, 0, len(routes))
	for _, route := range routes {
		if directive, ok := Resolve(route, machineID); ok {
			directives = append(directives, directive)
		}
	}
	return directives
}

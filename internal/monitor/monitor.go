// Package monitor runs the machine liveness sweep: machines that have not
// polled within the timeout window flip to offline and dashboards are told.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"conveyor/internal/metrics"
	"conveyor/internal/models"
	"conveyor/internal/websocket"
)

// Store is the slice of storage the sweeper needs.
type Store interface {
	MarkStaleOffline(cutoff time.Time) ([]models.Machine, error)
}

// Notifier pushes status changes to dashboard sessions.
type Notifier interface {
	Notify(userID int64, eventType string, data any)
}

// Sweeper periodically marks silent machines offline.
type Sweeper struct {
	store    Store
	notifier Notifier
	interval time.Duration
	timeout  time.Duration
}

// New builds a sweeper. interval controls how often the sweep runs; timeout
// is how long a machine may stay silent before it counts as offline.
func New(store Store, notifier Notifier, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{store: store, notifier: notifier, interval: interval, timeout: timeout}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("timeout", s.timeout).
		Msg("Machine liveness sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Machine liveness sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.timeout)
	stale, err := s.store.MarkStaleOffline(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Liveness sweep failed")
		return
	}
	for _, machine := range stale {
		log.Info().
			Int64("machine_id", machine.ID).
			Str("machine", machine.Name).
			Time("last_seen", machine.LastSeen).
			Msg("Machine timed out, marking offline")
		metrics.MachinesOnline.Dec()
		if s.notifier != nil {
			s.notifier.Notify(machine.UserID, websocket.EventMachineStatus, machine)
		}
	}
}

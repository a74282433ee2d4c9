package monitor

import (
	"sync"
	"testing"
	"time"

	"conveyor/internal/models"
	"conveyor/internal/websocket"
)

type fakeStore struct {
	mu      sync.Mutex
	stale   []models.Machine
	cutoffs []time.Time
}

func (f *fakeStore) MarkStaleOffline(cutoff time.Time) ([]models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	out := f.stale
	f.stale = nil
	return out, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	users  []int64
}

func (f *fakeNotifier) Notify(userID int64, eventType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	f.events = append(f.events, eventType)
}

func TestSweepNotifiesOwners(t *testing.T) {
	store := &fakeStore{stale: []models.Machine{
		{ID: 1, UserID: 10, Name: "hub", Status: models.MachineOffline},
		{ID: 2, UserID: 20, Name: "outpost", Status: models.MachineOffline},
	}}
	notifier := &fakeNotifier{}
	s := New(store, notifier, time.Minute, 30*time.Second)

	s.sweep()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.events))
	}
	for _, event := range notifier.events {
		if event != websocket.EventMachineStatus {
			t.Errorf("event = %q, want %q", event, websocket.EventMachineStatus)
		}
	}
	if notifier.users[0] != 10 || notifier.users[1] != 20 {
		t.Errorf("notified users = %v, want [10 20]", notifier.users)
	}
}

func TestSweepCutoffUsesTimeout(t *testing.T) {
	store := &fakeStore{}
	s := New(store, nil, time.Minute, 60*time.Second)

	before := time.Now().Add(-60 * time.Second)
	s.sweep()
	after := time.Now().Add(-60 * time.Second)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.cutoffs) != 1 {
		t.Fatalf("expected 1 sweep, got %d", len(store.cutoffs))
	}
	cutoff := store.cutoffs[0]
	if cutoff.Before(before) || cutoff.After(after) {
		t.Errorf("cutoff %v outside expected window [%v, %v]", cutoff, before, after)
	}
}

package models

import "time"

// MachineStatus tracks whether a machine has polled recently.
type MachineStatus string

const (
	MachineOnline  MachineStatus = "online"
	MachineOffline MachineStatus = "offline"
)

// User is a dashboard account. Machines never act as users; they
// authenticate with API keys owned by a user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey stores hashed key material plus display hints. The raw key is
// returned exactly once, at creation time.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	Hash       string     `json:"-"`
	Prefix     string     `json:"prefix,omitempty"`
	Suffix     string     `json:"suffix,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Machine is a remote game computer registered through an API key.
type Machine struct {
	ID       int64         `json:"id"`
	UserID   int64         `json:"user_id"`
	APIKeyID *int64        `json:"api_key_id,omitempty"`
	Name     string        `json:"name"`
	Status   MachineStatus `json:"status"`
	LastSeen time.Time     `json:"last_seen"`
}

// Peripheral is an inventory attached to a machine's peripheral bus.
// Names are unique per machine (they are bus addresses on the remote side).
type Peripheral struct {
	ID          int64     `json:"id"`
	MachineID   int64     `json:"machine_id"`
	MachineName string    `json:"machine_name,omitempty"`
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	Location    string    `json:"location,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Route moves items from one peripheral to another on every poll cycle.
// Source and destination machine IDs are denormalized so the resolver can
// check bus locality without touching storage.
type Route struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Name            string     `json:"name"`
	SourceID        int64      `json:"source_peripheral_id"`
	DestID          int64      `json:"dest_peripheral_id"`
	SourceName      string     `json:"source_name,omitempty"`
	DestName        string     `json:"dest_name,omitempty"`
	SourceMachineID int64      `json:"source_machine_id,omitempty"`
	DestMachineID   int64      `json:"dest_machine_id,omitempty"`
	Filter          ItemFilter `json:"filter"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
}

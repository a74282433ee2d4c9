package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/models"
)

// RegisterMachine records a machine checking in through an API key. A key
// maps to at most one machine; repeat registrations refresh the name and
// last_seen instead of creating duplicates.
func (s *Store) RegisterMachine(userID, apiKeyID int64, name string) (models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM machines WHERE user_id = ? AND api_key_id = ?`, userID, apiKeyID,
	).Scan(&id)
	switch {
	case err == nil:
		if _, err := s.db.Exec(
			`UPDATE machines SET name = ?, last_seen = ?, status = ? WHERE id = ?`,
			name, now.Unix(), models.MachineOnline, id,
		); err != nil {
			return models.Machine{}, fmt.Errorf("refresh machine: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.Exec(
			`INSERT INTO machines (user_id, api_key_id, name, last_seen, status) VALUES (?, ?, ?, ?, ?)`,
			userID, apiKeyID, name, now.Unix(), models.MachineOnline,
		)
		if err != nil {
			return models.Machine{}, fmt.Errorf("register machine: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return models.Machine{}, fmt.Errorf("register machine id: %w", err)
		}
	default:
		return models.Machine{}, fmt.Errorf("lookup machine: %w", err)
	}

	keyID := apiKeyID
	return models.Machine{
		ID:       id,
		UserID:   userID,
		APIKeyID: &keyID,
		Name:     name,
		Status:   models.MachineOnline,
		LastSeen: now,
	}, nil
}

// TouchMachine refreshes last_seen and flips the machine online. Called on
// every authenticated poll.
func (s *Store) TouchMachine(machineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE machines SET last_seen = ?, status = ? WHERE id = ?`,
		time.Now().UTC().Unix(), models.MachineOnline, machineID,
	)
	if err != nil {
		return fmt.Errorf("touch machine: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMachine fetches a machine scoped to its owner.
func (s *Store) GetMachine(userID, machineID int64) (models.Machine, error) {
	return scanMachine(s.db.QueryRow(
		`SELECT id, user_id, api_key_id, name, last_seen, status
		 FROM machines WHERE id = ? AND user_id = ?`, machineID, userID))
}

// GetMachineByKey resolves the machine bound to an API key, if one has
// registered yet.
func (s *Store) GetMachineByKey(userID, apiKeyID int64) (models.Machine, error) {
	return scanMachine(s.db.QueryRow(
		`SELECT id, user_id, api_key_id, name, last_seen, status
		 FROM machines WHERE user_id = ? AND api_key_id = ?`, userID, apiKeyID))
}

// ListMachines returns the user's machines ordered by name.
func (s *Store) ListMachines(userID int64) ([]models.Machine, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, api_key_id, name, last_seen, status
		 FROM machines WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var machines []models.Machine
	for rows.Next() {
		machine, err := scanMachineRow(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, machine)
	}
	return machines, rows.Err()
}

// DetachMachine unlinks a machine from its API key and marks it offline.
// Peripherals and routes stay intact so re-pairing restores service.
func (s *Store) DetachMachine(userID, machineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE machines SET api_key_id = NULL, status = ? WHERE id = ? AND user_id = ?`,
		models.MachineOffline, machineID, userID,
	)
	if err != nil {
		return fmt.Errorf("detach machine: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMachine removes a machine and, via FK cascade, its peripherals and
// any routes touching them.
func (s *Store) DeleteMachine(userID, machineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM machines WHERE id = ? AND user_id = ?`, machineID, userID)
	if err != nil {
		return fmt.Errorf("delete machine: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStaleOffline flips machines whose last_seen predates cutoff to
// offline and returns the ones that actually transitioned, so the caller
// can broadcast the change.
func (s *Store) MarkStaleOffline(cutoff time.Time) ([]models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, api_key_id, name, last_seen, status
		 FROM machines WHERE status = ? AND (last_seen IS NULL OR last_seen < ?)`,
		models.MachineOnline, cutoff.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("find stale machines: %w", err)
	}
	var stale []models.Machine
	for rows.Next() {
		machine, err := scanMachineRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, machine)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range stale {
		if _, err := s.db.Exec(
			`UPDATE machines SET status = ? WHERE id = ?`, models.MachineOffline, stale[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark machine offline: %w", err)
		}
		stale[i].Status = models.MachineOffline
	}
	return stale, nil
}

func scanMachine(row *sql.Row) (models.Machine, error) {
	return scanMachineRow(row)
}

func scanMachineRow(row rowScanner) (models.Machine, error) {
	var machine models.Machine
	var apiKeyID sql.NullInt64
	var name sql.NullString
	var lastSeen sql.NullInt64
	var status string
	err := row.Scan(&machine.ID, &machine.UserID, &apiKeyID, &name, &lastSeen, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Machine{}, ErrNotFound
		}
		return models.Machine{}, fmt.Errorf("scan machine: %w", err)
	}
	if apiKeyID.Valid {
		id := apiKeyID.Int64
		machine.APIKeyID = &id
	}
	machine.Name = name.String
	if lastSeen.Valid {
		machine.LastSeen = timeFromUnix(lastSeen.Int64)
	}
	machine.Status = models.MachineStatus(status)
	return machine, nil
}

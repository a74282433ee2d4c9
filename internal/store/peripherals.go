package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/models"
)

// UpsertPeripherals replaces the peripheral inventory reported by a machine.
// Names act as bus addresses, so (machine_id, name) is the natural key; a
// report that omits a previously known name deletes it.
func (s *Store) UpsertPeripherals(machineID int64, reported []models.Peripheral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin peripheral sync: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Unix()
	seen := make(map[string]struct{}, len(reported))
	for _, p := range reported {
		if p.Name == "" {
			continue
		}
		seen[p.Name] = struct{}{}
		if _, err := tx.Exec(
			`INSERT INTO peripherals (machine_id, name, type, location, last_updated)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(machine_id, name) DO UPDATE SET
			   type = excluded.type,
			   location = excluded.location,
			   last_updated = excluded.last_updated`,
			machineID, p.Name, p.Type, p.Location, now,
		); err != nil {
			return fmt.Errorf("upsert peripheral %q: %w", p.Name, err)
		}
	}

	rows, err := tx.Query(`SELECT id, name FROM peripherals WHERE machine_id = ?`, machineID)
	if err != nil {
		return fmt.Errorf("list peripherals for prune: %w", err)
	}
	type gone struct {
		id   int64
		name string
	}
	var stale []gone
	for rows.Next() {
		var g gone
		if err := rows.Scan(&g.id, &g.name); err != nil {
			rows.Close()
			return fmt.Errorf("scan peripheral for prune: %w", err)
		}
		if _, ok := seen[g.name]; !ok {
			stale = append(stale, g)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, g := range stale {
		if _, err := tx.Exec(`DELETE FROM peripherals WHERE id = ?`, g.id); err != nil {
			return fmt.Errorf("prune peripheral %q: %w", g.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit peripheral sync: %w", err)
	}
	return nil
}

// GetPeripheral fetches one peripheral scoped to the owning user.
func (s *Store) GetPeripheral(userID, peripheralID int64) (models.Peripheral, error) {
	return scanPeripheral(s.db.QueryRow(
		`SELECT p.id, p.machine_id, m.name, p.name, p.type, p.location, p.last_updated
		 FROM peripherals p JOIN machines m ON m.id = p.machine_id
		 WHERE p.id = ? AND m.user_id = ?`, peripheralID, userID))
}

// ListPeripheralsByMachine returns a machine's peripherals ordered by name.
func (s *Store) ListPeripheralsByMachine(machineID int64) ([]models.Peripheral, error) {
	rows, err := s.db.Query(
		`SELECT p.id, p.machine_id, m.name, p.name, p.type, p.location, p.last_updated
		 FROM peripherals p JOIN machines m ON m.id = p.machine_id
		 WHERE p.machine_id = ? ORDER BY p.name`, machineID)
	if err != nil {
		return nil, fmt.Errorf("list peripherals: %w", err)
	}
	return collectPeripherals(rows)
}

// ListPeripheralsByUser returns every peripheral across the user's machines,
// with the machine name attached for dashboard display.
func (s *Store) ListPeripheralsByUser(userID int64) ([]models.Peripheral, error) {
	rows, err := s.db.Query(
		`SELECT p.id, p.machine_id, m.name, p.name, p.type, p.location, p.last_updated
		 FROM peripherals p JOIN machines m ON m.id = p.machine_id
		 WHERE m.user_id = ? ORDER BY m.name, p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user peripherals: %w", err)
	}
	return collectPeripherals(rows)
}

func collectPeripherals(rows *sql.Rows) ([]models.Peripheral, error) {
	defer rows.Close()
	var peripherals []models.Peripheral
	for rows.Next() {
		p, err := scanPeripheralRow(rows)
		if err != nil {
			return nil, err
		}
		peripherals = append(peripherals, p)
	}
	return peripherals, rows.Err()
}

func scanPeripheral(row *sql.Row) (models.Peripheral, error) {
	return scanPeripheralRow(row)
}

func scanPeripheralRow(row rowScanner) (models.Peripheral, error) {
	var p models.Peripheral
	var machineName, ptype, location sql.NullString
	var lastUpdated int64
	err := row.Scan(&p.ID, &p.MachineID, &machineName, &p.Name, &ptype, &location, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Peripheral{}, ErrNotFound
		}
		return models.Peripheral{}, fmt.Errorf("scan peripheral: %w", err)
	}
	p.MachineName = machineName.String
	p.Type = ptype.String
	p.Location = location.String
	p.LastUpdated = timeFromUnix(lastUpdated)
	return p, nil
}

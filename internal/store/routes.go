package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/models"
)

// RouteUpdate carries the mutable route fields; nil means "leave as is".
// Setting Filter replaces both the substring column and the name list.
type RouteUpdate struct {
	Name    *string
	Enabled *bool
	Filter  *models.ItemFilter
}

// CreateRoute stores a route between two peripherals owned by the user.
// Both endpoints must exist and belong to the user; the filter's name list
// goes into route_items while a substring lives on the route row itself.
func (s *Store) CreateRoute(userID int64, name string, sourceID, destID int64, filter models.ItemFilter) (models.Route, error) {
	if _, err := s.GetPeripheral(userID, sourceID); err != nil {
		return models.Route{}, fmt.Errorf("source peripheral: %w", err)
	}
	if _, err := s.GetPeripheral(userID, destID); err != nil {
		return models.Route{}, fmt.Errorf("destination peripheral: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return models.Route{}, fmt.Errorf("begin create route: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO routes (user_id, name, source_peripheral_id, dest_peripheral_id, item_filter, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		userID, name, sourceID, destID, filterSubstringColumn(filter), now.Unix(),
	)
	if err != nil {
		return models.Route{}, fmt.Errorf("create route: %w", err)
	}
	routeID, err := res.LastInsertId()
	if err != nil {
		return models.Route{}, fmt.Errorf("create route id: %w", err)
	}
	if err := replaceRouteItems(tx, routeID, filter); err != nil {
		return models.Route{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Route{}, fmt.Errorf("commit create route: %w", err)
	}
	return s.getRoute(routeID, userID)
}

// GetRoute fetches a route scoped to its owner, with endpoint names and
// machine IDs denormalized for the resolver.
func (s *Store) GetRoute(userID, routeID int64) (models.Route, error) {
	return s.getRoute(routeID, userID)
}

// ListRoutesByUser returns the user's routes, newest first.
func (s *Store) ListRoutesByUser(userID int64) ([]models.Route, error) {
	rows, err := s.db.Query(routeSelect+`
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return s.collectRoutes(rows)
}

// ListEnabledRoutesByMachine returns enabled routes that touch the machine
// on either end. The resolver then decides which are actually runnable
// (both endpoints on the same bus).
func (s *Store) ListEnabledRoutesByMachine(machineID int64) ([]models.Route, error) {
	rows, err := s.db.Query(routeSelect+`
		WHERE r.enabled = 1 AND (sp.machine_id = ? OR dp.machine_id = ?)
		ORDER BY r.id`, machineID, machineID)
	if err != nil {
		return nil, fmt.Errorf("list machine routes: %w", err)
	}
	return s.collectRoutes(rows)
}

// UpdateRoute applies the non-nil fields of upd to a route owned by the user.
func (s *Store) UpdateRoute(userID, routeID int64, upd RouteUpdate) (models.Route, error) {
	s.mu.Lock()

	tx, err := s.db.Begin()
	if err != nil {
		s.mu.Unlock()
		return models.Route{}, fmt.Errorf("begin update route: %w", err)
	}

	var owner int64
	err = tx.QueryRow(`SELECT user_id FROM routes WHERE id = ?`, routeID).Scan(&owner)
	if err != nil || owner != userID {
		tx.Rollback()
		s.mu.Unlock()
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
			return models.Route{}, ErrNotFound
		}
		return models.Route{}, fmt.Errorf("lookup route: %w", err)
	}

	if upd.Name != nil {
		if _, err := tx.Exec(`UPDATE routes SET name = ? WHERE id = ?`, *upd.Name, routeID); err != nil {
			tx.Rollback()
			s.mu.Unlock()
			return models.Route{}, fmt.Errorf("update route name: %w", err)
		}
	}
	if upd.Enabled != nil {
		if _, err := tx.Exec(`UPDATE routes SET enabled = ? WHERE id = ?`, boolToInt(*upd.Enabled), routeID); err != nil {
			tx.Rollback()
			s.mu.Unlock()
			return models.Route{}, fmt.Errorf("update route enabled: %w", err)
		}
	}
	if upd.Filter != nil {
		if _, err := tx.Exec(`UPDATE routes SET item_filter = ? WHERE id = ?`, filterSubstringColumn(*upd.Filter), routeID); err != nil {
			tx.Rollback()
			s.mu.Unlock()
			return models.Route{}, fmt.Errorf("update route filter: %w", err)
		}
		if err := replaceRouteItems(tx, routeID, *upd.Filter); err != nil {
			tx.Rollback()
			s.mu.Unlock()
			return models.Route{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		s.mu.Unlock()
		return models.Route{}, fmt.Errorf("commit update route: %w", err)
	}
	s.mu.Unlock()
	return s.getRoute(routeID, userID)
}

// DeleteRoute removes a route and its name list.
func (s *Store) DeleteRoute(userID, routeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM routes WHERE id = ? AND user_id = ?`, routeID, userID)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Peripheral deletions cascade to routes, so endpoint columns can never be
// NULL here; LEFT JOIN guards only against rows read mid-transaction.
const routeSelect = `
	SELECT r.id, r.user_id, r.name,
	       r.source_peripheral_id, r.dest_peripheral_id,
	       sp.name, dp.name, sp.machine_id, dp.machine_id,
	       r.item_filter, r.enabled, r.created_at
	FROM routes r
	LEFT JOIN peripherals sp ON sp.id = r.source_peripheral_id
	LEFT JOIN peripherals dp ON dp.id = r.dest_peripheral_id`

func (s *Store) getRoute(routeID, userID int64) (models.Route, error) {
	route, err := s.scanRoute(s.db.QueryRow(routeSelect+`
		WHERE r.id = ? AND r.user_id = ?`, routeID, userID))
	if err != nil {
		return models.Route{}, err
	}
	return route, nil
}

func (s *Store) collectRoutes(rows *sql.Rows) ([]models.Route, error) {
	defer rows.Close()
	var routes []models.Route
	for rows.Next() {
		route, err := s.scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

func (s *Store) scanRoute(row rowScanner) (models.Route, error) {
	var route models.Route
	var sourceName, destName sql.NullString
	var sourceMachine, destMachine sql.NullInt64
	var substring sql.NullString
	var enabled int
	var createdAt int64
	err := row.Scan(
		&route.ID, &route.UserID, &route.Name,
		&route.SourceID, &route.DestID,
		&sourceName, &destName, &sourceMachine, &destMachine,
		&substring, &enabled, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Route{}, ErrNotFound
		}
		return models.Route{}, fmt.Errorf("scan route: %w", err)
	}
	route.SourceName = sourceName.String
	route.DestName = destName.String
	route.SourceMachineID = sourceMachine.Int64
	route.DestMachineID = destMachine.Int64
	route.Enabled = enabled != 0
	route.CreatedAt = timeFromUnix(createdAt)

	names, err := s.routeItemNames(route.ID)
	if err != nil {
		return models.Route{}, err
	}
	route.Filter = models.NewFilter(substring.String, names)
	return route, nil
}

func (s *Store) routeItemNames(routeID int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT item_name FROM route_items WHERE route_id = ? ORDER BY id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list route items: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan route item: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func filterSubstringColumn(filter models.ItemFilter) any {
	if filter.Kind() == models.FilterSubstring {
		return filter.Substring()
	}
	return nil
}

func replaceRouteItems(tx *sql.Tx, routeID int64, filter models.ItemFilter) error {
	if _, err := tx.Exec(`DELETE FROM route_items WHERE route_id = ?`, routeID); err != nil {
		return fmt.Errorf("clear route items: %w", err)
	}
	if filter.Kind() != models.FilterNames {
		return nil
	}
	for _, name := range filter.Names() {
		if _, err := tx.Exec(
			`INSERT INTO route_items (route_id, item_name) VALUES (?, ?)`, routeID, name,
		); err != nil {
			return fmt.Errorf("insert route item %q: %w", name, err)
		}
	}
	return nil
}

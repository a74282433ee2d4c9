package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/auth"
	"conveyor/internal/models"
)

// CreateAPIKey mints a new key for the user and returns the raw key string
// alongside the stored record. The raw key is never recoverable afterwards;
// only its hash and display hints persist.
func (s *Store) CreateAPIKey(userID int64, name string) (models.APIKey, string, error) {
	raw, err := auth.GenerateAPIKey()
	if err != nil {
		return models.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := models.APIKey{
		UserID:    userID,
		Name:      name,
		Hash:      auth.HashAPIKey(raw),
		Prefix:    auth.KeyPrefix(raw),
		Suffix:    auth.KeySuffix(raw),
		CreatedAt: now,
	}
	res, err := s.db.Exec(
		`INSERT INTO api_keys (user_id, key_hash, name, prefix, suffix, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key.UserID, key.Hash, key.Name, key.Prefix, key.Suffix, now.Unix(),
	)
	if err != nil {
		return models.APIKey{}, "", fmt.Errorf("create api key: %w", err)
	}
	key.ID, err = res.LastInsertId()
	if err != nil {
		return models.APIKey{}, "", fmt.Errorf("create api key id: %w", err)
	}
	return key, raw, nil
}

// VerifyAPIKey resolves a raw key presented by a machine to its record and
// owner, bumping last_used. Returns ErrNotFound for unknown keys.
func (s *Store) VerifyAPIKey(rawKey string) (models.APIKey, models.User, error) {
	hash := auth.HashAPIKey(rawKey)

	var key models.APIKey
	var name, prefix, suffix sql.NullString
	var createdAt int64
	var lastUsed sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, user_id, key_hash, name, prefix, suffix, created_at, last_used
		 FROM api_keys WHERE key_hash = ?`, hash,
	).Scan(&key.ID, &key.UserID, &key.Hash, &name, &prefix, &suffix, &createdAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.APIKey{}, models.User{}, ErrNotFound
		}
		return models.APIKey{}, models.User{}, fmt.Errorf("lookup api key: %w", err)
	}
	// Hash lookup already narrowed to one row; the constant-time compare
	// keeps the final check independent of sqlite's string handling.
	if !auth.CompareAPIKey(key.Hash, rawKey) {
		return models.APIKey{}, models.User{}, ErrNotFound
	}
	key.Name = name.String
	key.Prefix = prefix.String
	key.Suffix = suffix.String
	key.CreatedAt = timeFromUnix(createdAt)
	if lastUsed.Valid {
		t := timeFromUnix(lastUsed.Int64)
		key.LastUsedAt = &t
	}

	user, err := s.GetUserByID(key.UserID)
	if err != nil {
		return models.APIKey{}, models.User{}, fmt.Errorf("lookup api key owner: %w", err)
	}

	s.mu.Lock()
	_, err = s.db.Exec(`UPDATE api_keys SET last_used = ? WHERE id = ?`, time.Now().UTC().Unix(), key.ID)
	s.mu.Unlock()
	if err != nil {
		return models.APIKey{}, models.User{}, fmt.Errorf("touch api key: %w", err)
	}
	return key, user, nil
}

// ListAPIKeys returns the user's keys, newest first, without hashes exposed
// beyond the struct's unmarshaled field.
func (s *Store) ListAPIKeys(userID int64) ([]models.APIKey, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, key_hash, name, prefix, suffix, created_at, last_used
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var key models.APIKey
		var name, prefix, suffix sql.NullString
		var createdAt int64
		var lastUsed sql.NullInt64
		if err := rows.Scan(&key.ID, &key.UserID, &key.Hash, &name, &prefix, &suffix, &createdAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		key.Name = name.String
		key.Prefix = prefix.String
		key.Suffix = suffix.String
		key.CreatedAt = timeFromUnix(createdAt)
		if lastUsed.Valid {
			t := timeFromUnix(lastUsed.Int64)
			key.LastUsedAt = &t
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes a key owned by the user. Machines registered through
// the key keep their rows; the FK sets api_key_id NULL so they simply stop
// authenticating.
func (s *Store) DeleteAPIKey(userID, keyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM api_keys WHERE id = ? AND user_id = ?`, keyID, userID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

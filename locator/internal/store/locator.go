// CLAUDE:SUMMARY CRUD for named locators and their resolution history, with an EMA success rate per locator.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domlocator/dbopen"
	"github.com/hazyhaar/domlocator/horosafe"
	"github.com/hazyhaar/domlocator/idgen"
)

// successAlpha is the EMA weight of the latest outcome in success_rate.
const successAlpha = 0.05

var (
	newLocatorID    = idgen.Prefixed("loc_", idgen.Default)
	newResolutionID = idgen.Prefixed("res_", idgen.Default)
)

// Locator is a saved locator definition.
type Locator struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PageID        string  `json:"page_id,omitempty"`
	Definition    string  `json:"definition"` // JSON-encoded locator
	Hash          string  `json:"hash"`
	Description   string  `json:"description,omitempty"`
	SuccessRate   float64 `json:"success_rate"`
	TotalUses     int     `json:"total_uses"`
	TotalFailures int     `json:"total_failures"`
	LastOutcome   string  `json:"last_outcome,omitempty"`
	LastUsedAt    int64   `json:"last_used_at,omitempty"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

// Resolution is the outcome report of one resolution of a named locator.
// A resolution failed when Error is set.
type Resolution struct {
	ID         string  `json:"id"`
	LocatorID  string  `json:"locator_id"`
	PageID     string  `json:"page_id,omitempty"`
	Version    uint64  `json:"version"`
	Outcome    string  `json:"outcome"`
	Success    bool    `json:"success"` // derived from Error
	NodeID     int64   `json:"node_id,omitempty"`
	XPath      string  `json:"xpath,omitempty"`
	Confidence float64 `json:"confidence"`
	Candidates int     `json:"candidates"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  int64   `json:"created_at"`
}

const locatorColumns = `id, name, page_id, definition, hash, description, success_rate,
	total_uses, total_failures, last_outcome, last_used_at, created_at, updated_at`

// SaveLocator inserts l, or replaces the definition of the locator already
// saved under l.Name. Usage statistics survive an update; l is filled with
// the stored row.
func (s *Store) SaveLocator(ctx context.Context, l *Locator) error {
	if err := horosafe.ValidateIdentifier(l.Name); err != nil {
		return fmt.Errorf("store: save locator: %w", err)
	}
	if l.Definition == "" || l.Hash == "" {
		return fmt.Errorf("store: save locator %q: empty definition", l.Name)
	}

	now := time.Now().UnixMilli()
	if l.ID == "" {
		l.ID = newLocatorID()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO locators (id, name, page_id, definition, hash, description, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			page_id = excluded.page_id,
			definition = excluded.definition,
			hash = excluded.hash,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		l.ID, l.Name, l.PageID, l.Definition, l.Hash, l.Description, now, now,
	)
	if err != nil {
		return fmt.Errorf("store: save locator %q: %w", l.Name, err)
	}

	saved, err := s.GetLocatorByName(ctx, l.Name)
	if err != nil {
		return err
	}
	if saved == nil {
		return fmt.Errorf("store: save locator %q: row vanished", l.Name)
	}
	*l = *saved
	return nil
}

// GetLocator retrieves a locator by ID. It returns nil, nil when absent.
func (s *Store) GetLocator(ctx context.Context, id string) (*Locator, error) {
	return s.getLocator(ctx, `id = ?`, id)
}

// GetLocatorByName retrieves a locator by name. It returns nil, nil when
// absent.
func (s *Store) GetLocatorByName(ctx context.Context, name string) (*Locator, error) {
	return s.getLocator(ctx, `name = ?`, name)
}

func (s *Store) getLocator(ctx context.Context, where string, arg any) (*Locator, error) {
	l := &Locator{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT `+locatorColumns+` FROM locators WHERE `+where, arg).Scan(
		&l.ID, &l.Name, &l.PageID, &l.Definition, &l.Hash, &l.Description, &l.SuccessRate,
		&l.TotalUses, &l.TotalFailures, &l.LastOutcome, &l.LastUsedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get locator: %w", err)
	}
	return l, nil
}

// ListLocators returns saved locators by name, optionally limited to one
// page and to limit rows.
func (s *Store) ListLocators(ctx context.Context, pageID string, limit int) ([]*Locator, error) {
	query := `SELECT ` + locatorColumns + ` FROM locators`
	var args []any
	if pageID != "" {
		query += ` WHERE page_id = ?`
		args = append(args, pageID)
	}
	query += ` ORDER BY name`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list locators: %w", err)
	}
	defer rows.Close()

	var out []*Locator
	for rows.Next() {
		l := &Locator{}
		if err := rows.Scan(
			&l.ID, &l.Name, &l.PageID, &l.Definition, &l.Hash, &l.Description, &l.SuccessRate,
			&l.TotalUses, &l.TotalFailures, &l.LastOutcome, &l.LastUsedAt, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLocator removes the locator saved under name together with its
// resolution history. It reports whether a row was deleted.
func (s *Store) DeleteLocator(ctx context.Context, name string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM locators WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("store: delete locator %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordResolution inserts r and folds its outcome into the locator's
// usage counters and success rate.
func (s *Store) RecordResolution(ctx context.Context, r *Resolution) error {
	if r.ID == "" {
		r.ID = newResolutionID()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	r.Success = r.Error == ""
	success, failure := 0.0, 0
	if r.Success {
		success = 1.0
	} else {
		failure = 1
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resolutions
				(id, locator_id, page_id, version, outcome, node_id, xpath, confidence, candidates, error, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			r.ID, r.LocatorID, r.PageID, int64(r.Version), r.Outcome, r.NodeID, r.XPath,
			r.Confidence, r.Candidates, r.Error, r.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE locators SET
				success_rate = success_rate * ? + ?,
				total_uses = total_uses + 1,
				total_failures = total_failures + ?,
				last_outcome = ?,
				last_used_at = ?
			WHERE id = ?`,
			1-successAlpha, successAlpha*success, failure, r.Outcome, r.CreatedAt, r.LocatorID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: record resolution: %w", err)
	}
	return nil
}

// ListResolutions returns the most recent resolutions of a locator, newest
// first.
func (s *Store) ListResolutions(ctx context.Context, locatorID string, limit int) ([]*Resolution, error) {
	query := `SELECT id, locator_id, page_id, version, outcome, node_id, xpath, confidence, candidates, error, created_at
	          FROM resolutions WHERE locator_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{locatorID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list resolutions: %w", err)
	}
	defer rows.Close()

	var out []*Resolution
	for rows.Next() {
		r := &Resolution{}
		var version int64
		if err := rows.Scan(
			&r.ID, &r.LocatorID, &r.PageID, &version, &r.Outcome, &r.NodeID, &r.XPath,
			&r.Confidence, &r.Candidates, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		r.Version = uint64(version)
		r.Success = r.Error == ""
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountLocators returns the number of saved locators.
func (s *Store) CountLocators(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM locators`).Scan(&n)
	return n, err
}

// CountResolutions returns the number of recorded resolutions.
func (s *Store) CountResolutions(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolutions`).Scan(&n)
	return n, err
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/lexi/internal/vocabulary"
)

// Sign is a vocabulary entry stored in the database.
type Sign struct {
	ID        string
	Name      string
	Position  int
	Curls     []vocabulary.CurlRule
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Descriptor converts the sign into a vocabulary descriptor.
func (s *Sign) Descriptor() vocabulary.Descriptor {
	curls := make([]vocabulary.CurlRule, len(s.Curls))
	copy(curls, s.Curls)
	return vocabulary.Descriptor{Name: s.Name, Curls: curls}
}

// Validate checks that the sign could be part of a vocabulary.
func (s *Sign) Validate() error {
	v := vocabulary.Vocabulary{Descriptors: []vocabulary.Descriptor{s.Descriptor()}}
	return v.Validate()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const signColumns = `id, name, position, curls, enabled, created_at, updated_at`

// SignRepository provides CRUD operations for signs.
type SignRepository struct {
	db *sql.DB
}

// Signs returns the sign repository for this store.
func (s *Store) Signs() *SignRepository {
	return &SignRepository{db: s.db}
}

// Create validates and inserts a sign at the end of the vocabulary. An empty
// ID is filled with a new UUID.
func (r *SignRepository) Create(sg *Sign) error {
	return insertSign(r.db, sg)
}

func insertSign(db execer, sg *Sign) error {
	if err := sg.Validate(); err != nil {
		return err
	}
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}

	curls, err := json.Marshal(sg.Curls)
	if err != nil {
		return fmt.Errorf("encode curls: %w", err)
	}

	if err := db.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM signs`).Scan(&sg.Position); err != nil {
		return err
	}

	now := time.Now()
	sg.CreatedAt = now
	sg.UpdatedAt = now

	_, err = db.Exec(
		`INSERT INTO signs (`+signColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.Name, sg.Position, string(curls), sg.Enabled, sg.CreatedAt, sg.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("sign %q: %w", sg.Name, ErrDuplicate)
	}
	return err
}

// GetByID retrieves a sign by its ID.
func (r *SignRepository) GetByID(id string) (*Sign, error) {
	return scanSign(r.db.QueryRow(`SELECT `+signColumns+` FROM signs WHERE id = ?`, id))
}

// GetByName retrieves a sign by its name.
func (r *SignRepository) GetByName(name string) (*Sign, error) {
	return scanSign(r.db.QueryRow(`SELECT `+signColumns+` FROM signs WHERE name = ?`, name))
}

// List retrieves all signs in vocabulary order.
func (r *SignRepository) List() ([]*Sign, error) {
	rows, err := r.db.Query(`SELECT ` + signColumns + ` FROM signs ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signs []*Sign
	for rows.Next() {
		sg, err := scanSign(rows)
		if err != nil {
			return nil, err
		}
		signs = append(signs, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return signs, nil
}

// Count returns the number of stored signs.
func (r *SignRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM signs`).Scan(&n)
	return n, err
}

// Update validates and stores name, position, curls and enabled of an
// existing sign.
func (r *SignRepository) Update(sg *Sign) error {
	if err := sg.Validate(); err != nil {
		return err
	}
	curls, err := json.Marshal(sg.Curls)
	if err != nil {
		return fmt.Errorf("encode curls: %w", err)
	}

	sg.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE signs SET name = ?, position = ?, curls = ?, enabled = ?, updated_at = ?
		 WHERE id = ?`,
		sg.Name, sg.Position, string(curls), sg.Enabled, sg.UpdatedAt, sg.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sign %q: %w", sg.Name, ErrDuplicate)
		}
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a sign by its ID.
func (r *SignRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM signs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanSign(row rowScanner) (*Sign, error) {
	sg := &Sign{}
	var curls string

	err := row.Scan(&sg.ID, &sg.Name, &sg.Position, &curls, &sg.Enabled, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(curls), &sg.Curls); err != nil {
		return nil, fmt.Errorf("decode curls of sign %q: %w", sg.Name, err)
	}
	return sg, nil
}

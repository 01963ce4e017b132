package store

import (
	"errors"
	"fmt"

	"github.com/ayusman/lexi/internal/vocabulary"
)

// settingSeeded marks that the default vocabulary was installed once, so
// deleting every sign does not bring the defaults back on the next launch.
const settingSeeded = "vocabulary.seeded"

// Vocabulary builds a vocabulary from the enabled signs in position order.
func (s *Store) Vocabulary() (*vocabulary.Vocabulary, error) {
	signs, err := s.Signs().List()
	if err != nil {
		return nil, fmt.Errorf("list signs: %w", err)
	}

	v := &vocabulary.Vocabulary{}
	for _, sg := range signs {
		if sg.Enabled {
			v.Descriptors = append(v.Descriptors, sg.Descriptor())
		}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// SeedDefaults installs vocabulary.Default into an empty, never seeded
// database. It reports whether anything was inserted.
func (s *Store) SeedDefaults() (bool, error) {
	if _, err := s.Settings().Get(settingSeeded); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	n, err := s.Signs().Count()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, s.Settings().Set(settingSeeded, "true")
	}

	if err := s.ReplaceVocabulary(vocabulary.Default()); err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceVocabulary swaps all stored signs for v in one transaction.
func (s *Store) ReplaceVocabulary(v *vocabulary.Vocabulary) error {
	if err := v.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace vocabulary tx: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM signs`); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete signs: %w", err)
	}
	for _, d := range v.Descriptors {
		sg := &Sign{Name: d.Name, Curls: d.Curls, Enabled: true}
		if err := insertSign(tx, sg); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sign %q: %w", d.Name, err)
		}
	}
	if err := setSetting(tx, settingSeeded, "true"); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace vocabulary tx: %w", err)
	}
	return nil
}

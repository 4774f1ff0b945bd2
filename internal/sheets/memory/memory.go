package memory

import (
	"context"
	"fmt"
	"sync"

	"carteira/internal/sheets"
)

var _ sheets.Journal = (*Store)(nil)

// Store keeps mirrored rows in process. Rows already seen by key are
// skipped so redelivered events do not duplicate lines.
type Store struct {
	mu   sync.Mutex
	rows []sheets.JournalRow
	seen map[string]struct{}
}

func New() *Store {
	return &Store{seen: map[string]struct{}{}}
}

// Append stores the rows and returns a synthetic reference to the last one.
func (s *Store) Append(_ context.Context, rows ...sheets.JournalRow) (string, error) {
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if _, ok := s.seen[r.Key()]; ok {
			continue
		}
		s.seen[r.Key()] = struct{}{}
		s.rows = append(s.rows, r)
	}
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) ListJournal(_ context.Context, year int) ([]sheets.JournalRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.JournalRow
	for _, r := range s.rows {
		if r.Date.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rows returns a copy of every stored row in append order.
func (s *Store) Rows() []sheets.JournalRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.JournalRow(nil), s.rows...)
}

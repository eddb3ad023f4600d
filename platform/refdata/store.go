// Package refdata holds static, versioned reference tables that are swapped
// as whole snapshots. Readers never observe a partially loaded table.
package refdata

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Parser decodes and validates one snapshot.
type Parser[T any] func(data []byte) (*T, error)

// Store serves the current snapshot of a reference table. The embedded
// fallback is used when no file path is configured.
type Store[T any] struct {
	name     string
	path     string
	fallback []byte
	parse    Parser[T]

	current atomic.Pointer[T]
	mu      sync.Mutex
}

// NewStore loads the initial snapshot.
func NewStore[T any](name, path string, fallback []byte, parse Parser[T]) (*Store[T], error) {
	s := &Store[T]{
		name:     name,
		path:     strings.TrimSpace(path),
		fallback: fallback,
		parse:    parse,
	}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active snapshot. The returned value must not be modified.
func (s *Store[T]) Current() *T {
	return s.current.Load()
}

// Reload re-reads the source and swaps the snapshot. On error the previous
// snapshot stays active.
func (s *Store[T]) Reload() (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.fallback
	if s.path != "" {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %w", s.name, s.path, err)
		}
		data = raw
	}

	next, err := s.parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	s.current.Store(next)
	return next, nil
}

// Package ipc provides durable boolean signals shared between independent processes.
//
// A signal is present while a file of the same name exists in the store directory.
// The file system is the only synchronization medium between the supervisor, the
// trading cycle and the operator, so a signal survives a crash of any of them.
package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Well-known signal names.
const (
	IsRunning = "isRunning"
	IsPaused  = "isPaused"
)

// Store keeps signals as files inside Dir.
type Store struct {
	dir string
	log zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger reports signals whose state cannot be read.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log.With().Str("component", "ipc").Logger() }
}

// NewStore creates the directory if needed and returns a Store rooted there.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("ipc: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ipc: create dir: %w", err)
	}
	s := &Store{dir: dir, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("ipc: invalid signal name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Set marks the signal present. Setting an already present signal is a no-op.
func (s *Store) Set(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ipc: set %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ipc: sync %s: %w", name, err)
	}
	return f.Close()
}

// TrySet atomically creates the signal and reports whether this call created it.
// It returns false without error when the signal was already present. A signal
// that cannot be made durable is removed again and reported as not created.
func (s *Store) TrySet(name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("ipc: try set %s: %w", name, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	err = f.Sync()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		return false, fmt.Errorf("ipc: sync %s: %w", name, err)
	}
	return true, nil
}

// Clear removes the signal. Clearing an absent signal is a no-op.
func (s *Store) Clear(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ipc: clear %s: %w", name, err)
	}
	return nil
}

// IsSet reports whether the signal is present. Only a missing file counts as
// absent; a signal whose state cannot be read is logged and reported as set.
// Invalid names are never set.
func (s *Store) IsSet(name string) bool {
	if _, err := s.path(name); err != nil {
		return false
	}
	set, err := s.Lookup(name)
	if err != nil {
		s.log.Error().Err(err).Str("signal", name).Msg("cannot read signal, treating it as set")
		return true
	}
	return set
}

// Lookup reports whether the signal is present, returning any error other than
// the file not existing.
func (s *Store) Lookup(name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ipc: stat %s: %w", name, err)
	}
	return true, nil
}

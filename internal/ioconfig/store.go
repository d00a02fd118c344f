// Package ioconfig loads and serves IO configuration snapshots.
//
// A snapshot is immutable. Candidate parses the file again without touching
// the current snapshot; Apply swaps a validated config in once the rest of
// the system has accepted it.
package ioconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Store struct {
	validator *Validator
	logger    *zap.Logger

	mu      sync.RWMutex
	path    string
	current *types.IOConfig
}

func NewStore(logger *zap.Logger) (*Store, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Store{
		validator: validator,
		logger:    logger,
	}, nil
}

// Load reads path and makes it the source for later candidates.
func (s *Store) Load(path string) (*types.IOConfig, error) {
	cfg, err := s.readFile(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.path = path
	s.current = cfg
	s.mu.Unlock()

	s.logger.Info("IO configuration loaded",
		zap.String("path", path),
		zap.Int("points", len(cfg.Points)))

	return cfg.Clone(), nil
}

// Candidate parses the last loaded file again without making it current.
// Callers that have to apply the result elsewhere first commit it with
// Apply once it has been accepted.
func (s *Store) Candidate() (*types.IOConfig, error) {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()

	if path == "" {
		return nil, fmt.Errorf("no configuration file loaded: %w", types.ErrNotInitialized)
	}

	return s.readFile(path)
}

// Apply validates cfg and makes it current without touching the file.
func (s *Store) Apply(cfg *types.IOConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg.Clone()
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() (*types.IOConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, fmt.Errorf("no configuration: %w", types.ErrNotInitialized)
	}
	return s.current.Clone(), nil
}

func (s *Store) Point(id string) (types.PointConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return types.PointConfig{}, fmt.Errorf("no configuration: %w", types.ErrNotInitialized)
	}
	p, err := s.current.Point(id)
	if err != nil {
		return types.PointConfig{}, err
	}
	p.Signal.LookupTable = append([]types.LookupEntry(nil), p.Signal.LookupTable...)
	return p, nil
}

func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *Store) readFile(path string) (*types.IOConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read io config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", path, err)
		}
	}

	cfg, err := s.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates a JSON document and decodes it.
func (s *Store) Parse(data []byte) (*types.IOConfig, error) {
	if err := s.validator.ValidateDocument(data); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidArgument, err)
	}

	var cfg types.IOConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal io config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return json.Marshal(doc)
}

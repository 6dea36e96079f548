package settings

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"mercator-hq/apiflow/pkg/config"
)

// FileName is the settings file created under the user config directory.
const FileName = "config.json"

// DefaultPath returns <UserConfigDir>/apiflow/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, "apiflow", FileName), nil
}

// Store reads and writes the user's ProxyConfig. Files ending in .yaml or
// .yml are YAML; everything else is indented JSON.
type Store struct {
	path string

	mu     sync.Mutex
	digest [sha256.Size]byte
	known  bool
}

// NewStore creates a store for path. An empty path uses DefaultPath.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	return &Store{path: abs}, nil
}

// Path returns the absolute settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file returns (nil, nil).
func (s *Store) Load() (*config.ProxyConfig, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	s.remember(data)
	return cfg, nil
}

// Save writes cfg atomically: the content goes to a temporary file in the
// same directory which is then renamed over the settings file.
func (s *Store) Save(cfg *config.ProxyConfig) error {
	if cfg == nil {
		return errors.New("settings: nil config")
	}
	data, err := s.encode(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod settings: %w", err)
	}

	// Record before the rename so a watcher never sees our own write as new.
	s.remember(data)
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Changed reports whether the file content differs from the last content
// loaded or saved through this store. A missing file is not a change.
func (s *Store) Changed() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.known || sum != s.digest, nil
}

func (s *Store) remember(data []byte) {
	sum := sha256.Sum256(data)
	s.mu.Lock()
	s.digest = sum
	s.known = true
	s.mu.Unlock()
}

func (s *Store) isYAML() bool {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (s *Store) decode(data []byte) (*config.ProxyConfig, error) {
	var cfg config.ProxyConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse settings %s: file is empty", s.path)
	}
	if s.isYAML() {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", s.path, err)
		}
		return &cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return &cfg, nil
}

func (s *Store) encode(cfg *config.ProxyConfig) ([]byte, error) {
	if s.isYAML() {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode settings: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode settings: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return append(data, '\n'), nil
}

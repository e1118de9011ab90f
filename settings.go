package finledger

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings is the process-wide recent-files list, per spec §6's settings
// file. Guarded for interior mutability the way the connection pool is,
// per §5's shared-resources list.
type Settings struct {
	mu          sync.Mutex
	path        string
	RecentFiles []string `yaml:"recent_files"`
}

func settingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", ioErr("resolve config dir: %v", err)
	}
	return filepath.Join(dir, "finledger", "settings.yaml"), nil
}

// LoadSettings reads the settings file, returning an empty Settings if it
// does not exist yet.
func LoadSettings() (*Settings, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, err
	}
	s := &Settings{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, ioErr("read settings %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, parseErr("parse settings %s: %v", path, err)
	}
	return s, nil
}

// Save persists the settings file, creating its parent directory if needed.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ioErr("create settings dir: %v", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return ioErr("marshal settings: %v", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return ioErr("write settings %s: %v", s.path, err)
	}
	return nil
}

// Touch records path as the most-recently-opened file, moving it to the
// front and deduplicating prior entries.
func (s *Settings) Touch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.RecentFiles[:0]
	for _, p := range s.RecentFiles {
		if p != path {
			filtered = append(filtered, p)
		}
	}
	s.RecentFiles = append([]string{path}, filtered...)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "keytune"
	configFile = "config.yaml"
)

// fileMutex serializes read-modify-write cycles within the process.
var fileMutex sync.Mutex

// GetConfigDir returns the keytune config directory. XDG_CONFIG_HOME is
// honoured on every Unix, including macOS; otherwise ~/.config is used.
// Windows uses %AppData%.
func GetConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine config directory: %w", err)
		}
		return filepath.Join(base, appName), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the default config.yaml path.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// resolvePath returns path, or the default config path when path is empty.
func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return GetConfigPath()
}

// Load loads the registry from path (the default location when empty).
// A missing file yields a new default registry.
func Load(path string) (*Registry, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()
	return load(path)
}

func load(path string) (*Registry, error) {
	configPath, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewRegistry(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	reg := &Registry{}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	if reg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", reg.Version, CurrentVersion)
	}
	reg.fillDefaults()
	return reg, nil
}

// Save writes the registry to path (the default location when empty).
func (r *Registry) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()
	return r.save(path)
}

func (r *Registry) save(path string) error {
	configPath, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	body, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := fmt.Sprintf("# keytune configuration: tuning preferences and the paired keyboard.\n# Location: %s\n\n", configPath)
	return writeAtomic(configPath, append([]byte(header), body...))
}

// writeAtomic replaces path via a temp file in the same directory. The
// directory and file are user-only since the file names attached hardware.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+configFile+".*")
	if err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Update loads the registry, applies fn and saves it, holding the file lock
// throughout so concurrent updates are not lost.
func Update(path string, fn func(r *Registry) error) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	r, err := load(path)
	if err != nil {
		return err
	}
	if err := fn(r); err != nil {
		return err
	}
	return r.save(path)
}

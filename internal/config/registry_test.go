package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/keytune/internal/transport"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "keytune") {
		t.Errorf("GetConfigDir() = %v, should contain 'keytune'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDirXDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG only applies on Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != filepath.Join("/tmp/xdg", "keytune") {
		t.Errorf("GetConfigDir() = %v", configDir)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if reg.Version != CurrentVersion {
		t.Errorf("Version = %v, want %v", reg.Version, CurrentVersion)
	}
	if reg.Preferences.Sync.BatchSize != 16 {
		t.Errorf("BatchSize = %v, want 16", reg.Preferences.Sync.BatchSize)
	}
	if reg.Preferences.Session.Reads.MaxAttempts != 3 {
		t.Errorf("Reads.MaxAttempts = %v, want 3", reg.Preferences.Session.Reads.MaxAttempts)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Preferences.LogLevel = "debug"
	reg.Preferences.Sync.Throttle = 250 * time.Millisecond
	if err := reg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# keytune configuration file") {
		t.Error("Saved file should start with the header comment")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should not remain after save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Preferences.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", loaded.Preferences.LogLevel)
	}
	if loaded.Preferences.Sync.Throttle != 250*time.Millisecond {
		t.Errorf("Throttle = %v, want 250ms", loaded.Preferences.Sync.Throttle)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 9\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() should reject unsupported versions")
	}
}

func TestLoadFillsMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "version: 1\npreferences:\n  sync:\n    batch_size: 8\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reg.Preferences.Sync.BatchSize != 8 {
		t.Errorf("BatchSize = %v, want 8", reg.Preferences.Sync.BatchSize)
	}
	if reg.Preferences.Session == nil || reg.Preferences.Bridge == nil {
		t.Error("Missing preference sections should be filled with defaults")
	}
}

func TestPairingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewPairingFile(path)

	id, err := store.Load()
	if err != nil || id != "" {
		t.Fatalf("Load() on empty store = %q, %v", id, err)
	}

	old := transport.DeviceInfo{VendorID: 1, ProductID: 2, Serial: "old"}
	current := transport.DeviceInfo{VendorID: 1, ProductID: 2, Serial: "new", ProductName: "HE75"}

	if err := store.Save(old); err != nil {
		t.Fatalf("Save(old) error = %v", err)
	}
	if err := store.Save(current); err != nil {
		t.Fatalf("Save(current) error = %v", err)
	}

	id, err = store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if id != current.StableID() {
		t.Errorf("Load() = %q, want %q", id, current.StableID())
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reg.GetDevice(old.StableID()) != nil {
		t.Error("Pairing should remove data for other devices")
	}
	if d := reg.GetDevice(current.StableID()); d == nil || d.Name != "HE75" {
		t.Errorf("Paired device should be remembered, got %+v", d)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	id, _ = store.Load()
	if id != "" {
		t.Errorf("Load() after Clear() = %q", id)
	}
}

func TestSetDeviceNickname(t *testing.T) {
	reg := NewRegistry()
	info := transport.DeviceInfo{VendorID: 1, ProductID: 2}

	if reg.SetDeviceNickname(info.StableID(), "desk") {
		t.Error("SetDeviceNickname() should fail for unknown devices")
	}
	reg.RememberDevice(info)
	if !reg.SetDeviceNickname(info.StableID(), "desk") {
		t.Error("SetDeviceNickname() should succeed for remembered devices")
	}
	if reg.GetDevice(info.StableID()).Nickname != "desk" {
		t.Error("Nickname not stored")
	}
}

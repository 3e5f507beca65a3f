package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/transport"
)

// PairingFile persists the paired keyboard's StableID in the config file.
type PairingFile struct {
	path string
}

// NewPairingFile returns a store backed by the config file at path
// (the default location when empty).
func NewPairingFile(path string) *PairingFile {
	return &PairingFile{path: path}
}

// Load returns the paired StableID, or "" when nothing is paired.
func (p *PairingFile) Load() (transport.StableID, error) {
	r, err := Load(p.path)
	if err != nil {
		return "", err
	}
	if r.Pairing == nil {
		return "", nil
	}
	return transport.StableID(r.Pairing.StableID), nil
}

// Save pairs info, replacing any earlier pairing and dropping remembered
// data for every other keyboard.
func (p *PairingFile) Save(info transport.DeviceInfo) error {
	id := info.StableID()
	return Update(p.path, func(r *Registry) error {
		r.Pairing = &Pairing{StableID: string(id), PairedAt: time.Now()}
		r.RememberDevice(info)
		if n := r.ForgetOthers(id); n > 0 {
			logging.Info("Removed stale device data", zap.Int("devices", n))
		}
		return nil
	})
}

// Clear forgets the pairing. Remembered device data is kept.
func (p *PairingFile) Clear() error {
	return Update(p.path, func(r *Registry) error {
		r.Pairing = nil
		return nil
	})
}

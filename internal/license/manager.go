package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State is the latest decode of a watched path.
type State struct {
	Report      *Report
	Err         error
	LastReload  time.Time
	Fingerprint string
}

// Manager keeps the decoded state of a license path current.
type Manager struct {
	mu       sync.RWMutex
	state    State
	decoder  *Decoder
	path     string
	onChange func(State)

	// PollInterval is used by StartWatcher for the polling loop.
	PollInterval time.Duration
}

// NewManager decodes path once and returns a manager for it. onChange, if
// not nil, is called after every reload.
func NewManager(ctx context.Context, path string, decoder *Decoder, onChange func(State)) *Manager {
	m := &Manager{
		path:         path,
		decoder:      decoder,
		onChange:     onChange,
		PollInterval: 60 * time.Second,
	}
	m.Reload(ctx)
	return m
}

// Reload re-decodes the path and swaps the state atomically.
func (m *Manager) Reload(ctx context.Context) {
	fp, _ := fingerprint(m.path)
	report, err := m.decoder.DecodePath(ctx, m.path)
	if err != nil {
		log.Printf("[license] decode of %s failed: %v", m.path, err)
	}
	st := State{
		Report:      report,
		Err:         err,
		LastReload:  time.Now(),
		Fingerprint: fp,
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(st)
	}
}

// ReloadIfChanged reloads only when the names, sizes or modification times
// under the path differ from the last reload. It reports whether it reloaded.
func (m *Manager) ReloadIfChanged(ctx context.Context) bool {
	fp, err := fingerprint(m.path)
	m.mu.RLock()
	last := m.state.Fingerprint
	m.mu.RUnlock()
	if err == nil && fp == last {
		return false
	}
	m.Reload(ctx)
	return true
}

// GetState returns a copy of the current state.
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// fingerprint summarizes the path and, for a directory, its direct entries.
func fingerprint(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d\n", filepath.Base(path), st.Size(), st.ModTime().UnixNano())
	if st.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			fmt.Fprintf(h, "%s|%d|%d\n", e.Name(), info.Size(), info.ModTime().UnixNano())
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

type snapshot struct {
	data    []byte
	version int64
}

// MemoryVault keeps snapshots in memory. It is safe for concurrent use.
type MemoryVault struct {
	name      string
	mu        sync.RWMutex
	snapshots map[string]snapshot
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, snapshots: make(map[string]snapshot)}
}

// Name returns the vault name given to NewMemoryVault.
func (m *MemoryVault) Name() string { return m.name }

// PutSnapshot stores the snapshot for hostID, replacing any earlier one.
// The reader must yield exactly size bytes.
func (m *MemoryVault) PutSnapshot(hostID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[hostID] = snapshot{data: data, version: version}
	return nil
}

// GetSnapshot writes the stored snapshot for hostID to w.
func (m *MemoryVault) GetSnapshot(hostID string, w io.Writer) error {
	m.mu.RLock()
	s, ok := m.snapshots[hostID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s in vault %s: %w", hostID, m.name, ErrSnapshotNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(s.data)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns the stored version, or 0 if none is stored.
func (m *MemoryVault) SnapshotVersion(hostID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[hostID].version, nil
}

// ValidateSetup always succeeds; there is nothing to provision.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ sft.Vault = (*MemoryVault)(nil)

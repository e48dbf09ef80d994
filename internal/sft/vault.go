package sft

import "io"

// Vault stores encrypted or plain copies of the metadata store, one per
// host, each tagged with the operation ID it was taken after.
type Vault interface {
	// Name identifies the vault in logs and listings.
	Name() string

	// PutSnapshot stores a snapshot of size bytes read from r.
	PutSnapshot(hostID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the stored snapshot for hostID to w.
	GetSnapshot(hostID string, w io.Writer) error

	// SnapshotVersion returns the stored version for hostID, or 0 when the
	// vault holds no snapshot for it.
	SnapshotVersion(hostID string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup() error
}

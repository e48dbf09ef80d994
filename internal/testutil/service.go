package testutil

import (
	"testing"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// TestEnv bundles a service with the fakes behind it.
type TestEnv struct {
	Service  *sft.SFTService
	Database sft.Database
	Archive  *TestArchive
	Clock    *ManualClock
	IDs      *SequentialIDs
	Logger   *RecordingLogger
}

// NewTestEnv wires an SFTService to an in-memory database, a temp-dir
// archive, a fixed clock and sequential identities.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	env := &TestEnv{
		Database: NewTestDatabase(t),
		Archive:  NewTestArchive(t),
		Clock:    FixedClock(),
		IDs:      NewStubIDGenerator(),
		Logger:   NewRecordingLogger(),
	}
	env.Service = sft.NewSFTService(env.Database, env.Archive, sft.NewClassifier(nil), env.Logger, env.Clock, env.IDs)
	return env
}

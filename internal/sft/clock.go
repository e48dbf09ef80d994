package sft

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps for revisions, edges and operations.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// IDGenerator allocates identity tokens for newly tracked files.
type IDGenerator interface {
	New() string
}

type uuidV7 struct{}

func (uuidV7) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// UUIDv7 returns a generator of time-ordered UUIDv7 identities, so
// identities sort by creation.
func UUIDv7() IDGenerator { return uuidV7{} }

// CanonicalIdentity parses s as an identity token in any form uuid accepts
// (braced, urn:uuid:, bare hex, any case) and returns the stored form.
func CanonicalIdentity(s string) (string, bool) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// Logger is the subset of *slog.Logger the service and watcher log through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ Logger = (*slog.Logger)(nil)

// DiscardLogger drops every record.
func DiscardLogger() Logger { return slog.New(slog.DiscardHandler) }

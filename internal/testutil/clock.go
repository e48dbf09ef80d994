package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Epoch is where FixedClock starts: 2024-01-15 10:30:00 UTC, the instant
// 1705314600 that shows up in archived file names.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// ManualClock only moves when told to.
type ManualClock struct {
	mu sync.Mutex
	at time.Time
}

// FixedClock returns a ManualClock frozen at Epoch.
func FixedClock() *ManualClock {
	return &ManualClock{at: Epoch}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

// SequentialIDs hands out StubID(1), StubID(2), ...
type SequentialIDs struct {
	n atomic.Int64
}

func NewStubIDGenerator() *SequentialIDs { return &SequentialIDs{} }

func (g *SequentialIDs) New() string { return StubID(int(g.n.Add(1))) }

// StubID is the nth identity a SequentialIDs produces. The version and
// variant nibbles make it a valid UUIDv7.
func StubID(n int) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", n)
}

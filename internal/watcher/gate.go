package watcher

// A Gate limits concurrency. Goroutines enter the gate by calling Enter()
// and signal that they are done by calling Leave().
type Gate chan struct{}

// NewGate returns a Gate which accepts at most n entries at a time.
// A non-positive n admits one.
func NewGate(n int) Gate {
	if n < 1 {
		n = 1
	}
	return Gate(make(chan struct{}, n))
}

// Enter blocks until fewer than n goroutines are inside.
func (g Gate) Enter() {
	g <- struct{}{}
}

// Leave must balance each Enter. It may be called from another goroutine.
func (g Gate) Leave() {
	<-g
}

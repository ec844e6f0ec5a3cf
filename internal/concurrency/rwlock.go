// Package concurrency implements the core's scheduling primitives: a
// writer-priority reader/writer lock, a counting semaphore, a bounded
// task queue, and (in throttle.go) the adaptive concurrency throttle.
package concurrency

import "sync"

// RWLock is a non-reentrant reader/writer lock with writer priority: once
// a writer is pending, new readers block until the writer has acquired
// and released. Multiple readers may hold the lock concurrently; at most
// one writer may hold it, exclusive of all readers.
type RWLock struct {
	mu           sync.Mutex
	readerCond   *sync.Cond
	writerCond   *sync.Cond
	activeReaders int
	writerActive  bool
	writersWaiting int
}

// NewRWLock returns a ready-to-use lock.
func NewRWLock() *RWLock {
	l := &RWLock{}
	l.readerCond = sync.NewCond(&l.mu)
	l.writerCond = sync.NewCond(&l.mu)
	return l
}

// RLock acquires the read side. Blocks while a writer holds the lock or
// is waiting, implementing writer priority.
func (l *RWLock) RLock() {
	l.mu.Lock()
	for l.writerActive || l.writersWaiting > 0 {
		l.readerCond.Wait()
	}
	l.activeReaders++
	l.mu.Unlock()
}

// RUnlock releases the read side.
func (l *RWLock) RUnlock() {
	l.mu.Lock()
	l.activeReaders--
	if l.activeReaders == 0 {
		l.writerCond.Signal()
	}
	l.mu.Unlock()
}

// Lock acquires the write side, draining existing readers first and
// blocking any new readers that arrive while waiting.
func (l *RWLock) Lock() {
	l.mu.Lock()
	l.writersWaiting++
	for l.writerActive || l.activeReaders > 0 {
		l.writerCond.Wait()
	}
	l.writersWaiting--
	l.writerActive = true
	l.mu.Unlock()
}

// Unlock releases the write side, waking any waiting writer first (to
// preserve write-order fairness) and otherwise releasing all readers.
func (l *RWLock) Unlock() {
	l.mu.Lock()
	l.writerActive = false
	if l.writersWaiting > 0 {
		l.writerCond.Signal()
	} else {
		l.readerCond.Broadcast()
	}
	l.mu.Unlock()
}

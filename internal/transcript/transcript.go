// Package transcript holds the ordered text entries of a chat session.
package transcript

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyLog is returned by AppendToLast when there is no entry to grow.
var ErrEmptyLog = errors.New("transcript: log is empty")

// Log is an append-only sequence of entries where only the last entry may
// grow in place. Entries are replaced as whole strings, so a Snapshot taken
// concurrently with a write sees either the old or the new value.
type Log struct {
	mu      sync.RWMutex
	entries []string
}

// New returns a log seeded with the given entries.
func New(entries ...string) *Log {
	return &Log{entries: append([]string(nil), entries...)}
}

// Append adds entry at the end of the log.
func (l *Log) Append(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// AppendToLast concatenates fragment onto the last entry.
func (l *Log) AppendToLast(fragment string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ErrEmptyLog
	}
	last := len(l.entries) - 1
	l.entries[last] = l.entries[last] + fragment
	return nil
}

func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Snapshot returns a copy of every entry in insertion order.
func (l *Log) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the final entry, or false when the log is empty.
func (l *Log) Last() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return "", false
	}
	return l.entries[len(l.entries)-1], true
}

// Join renders the log as a single string.
func (l *Log) Join(sep string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return strings.Join(l.entries, sep)
}

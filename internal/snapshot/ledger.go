package snapshot

import "sync"

// Ledger remembers, per path, the snapshot taken immediately before the last
// mutating tool touched that path. The undo tool reads it.
type Ledger struct {
	mu    sync.Mutex
	edits map[string]string // workspace-relative path -> pre-edit tree hash
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{edits: map[string]string{}}
}

// Record notes that path is about to be mutated while the tree matched hash.
// Sentinel hashes are ignored so a failed snapshot never poisons undo.
func (l *Ledger) Record(path, hash string) {
	if hash == Sentinel || path == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edits[path] = hash
}

// Last returns the pre-edit snapshot hash for path, if one was recorded.
func (l *Ledger) Last(path string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hash, ok := l.edits[path]
	return hash, ok
}

// Reset drops every record, for session boundaries.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edits = map[string]string{}
}

// Forget drops the record for path after a successful undo.
func (l *Ledger) Forget(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.edits, path)
}

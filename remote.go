package tlscore

import (
	"sync"

	"github.com/subtrace-labs/tlscore/internal/cipher"
)

// Remote is the collaborator spec.md §3 describes: it owns the lock
// guarding all transport operations and exposes the current session
// cipher. Go's sync.Mutex is not reentrant like the spec's
// recursive/exclusive lock, so internal helpers that already run under the
// lock are unexported "Locked" methods that never re-acquire it (see
// SPEC_FULL.md §5).
type Remote struct {
	mu     sync.Mutex
	cipher cipher.Cipher
}

// NewRemote returns a Remote with no cipher attached.
func NewRemote() *Remote {
	return &Remote{}
}

// GetCipher returns the current session cipher, or nil if none is attached.
func (r *Remote) GetCipher() cipher.Cipher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cipher
}

// SetCipher attaches (or clears, with nil) the session cipher.
func (r *Remote) SetCipher(c cipher.Cipher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cipher = c
}

// cipherLocked returns the current session cipher for a caller that already
// holds the remote lock.
func (r *Remote) cipherLocked() cipher.Cipher {
	return r.cipher
}

// Lock acquires the remote lock. Exported so a multi-transport switcher
// (out of scope, spec.md §1) can serialize a reset-and-reinit sequence
// against concurrent transmits the same way the reference's caller does.
func (r *Remote) Lock() {
	r.mu.Lock()
}

// Unlock releases the remote lock.
func (r *Remote) Unlock() {
	r.mu.Unlock()
}

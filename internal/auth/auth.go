// Package auth implements the authentication handshake (component C3):
// VERSION/AUTH state machine, protocol-version gating, key-file loading,
// and constant-time key comparison.
//
// Grounded on the teacher's auth.Middleware — both read a shared secret
// from configuration once at startup and compare it against what the
// peer presents — generalized from a per-request HTTP header check into
// a per-connection handshake with explicit state.
package auth

import (
	"crypto/subtle"
	"errors"
	"os"

	"github.com/brlapi/brlapi-core/internal/brlerr"
)

// MinProtocolVersion is the oldest client wire-protocol version this
// server accepts (spec §4.2).
const MinProtocolVersion = 8

// State is a connection's position in the VERSION/AUTH handshake.
type State int

const (
	StateAwaitingVersion State = iota
	StateAwaitingAuth
	StateAuthed
	StateFailed
)

var ErrUnexpectedPacket = errors.New("auth: packet not valid in current handshake state")

// Method is a wire-level AUTH method code (spec §4.2, §8 scenario 1).
type Method uint32

const (
	MethodNone Method = iota
	MethodKey
)

// KeyAuthenticator holds the shared secret read from the key file named
// by BRLAPI_AUTH (spec §4.2, §5).
type KeyAuthenticator struct {
	key []byte
}

// NoAuth is a KeyAuthenticator that accepts any key, used when
// BRLAPI_AUTH names no file (spec §5 "auth none").
func NoAuth() *KeyAuthenticator { return &KeyAuthenticator{key: nil} }

// LoadKeyFile reads the shared secret from path. An empty path or the
// literal "none" disables authentication.
func LoadKeyFile(path string) (*KeyAuthenticator, error) {
	if path == "" || path == "none" {
		return NoAuth(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &KeyAuthenticator{key: data}, nil
}

// HasKey reports whether this authenticator requires a shared secret,
// as opposed to a NoAuth authenticator that accepts anything.
func (k *KeyAuthenticator) HasKey() bool {
	return k != nil && k.key != nil
}

// Verify reports whether supplied matches the loaded key, in constant
// time. An authenticator with no key (NoAuth) accepts anything.
func (k *KeyAuthenticator) Verify(supplied []byte) bool {
	if k.key == nil {
		return true
	}
	if len(supplied) != len(k.key) {
		return false
	}
	return subtle.ConstantTimeCompare(supplied, k.key) == 1
}

// HostVersionCheck lets the embedding host reject a client version for
// reasons beyond the minimum bound (spec §6's "implicit host-provided
// check"). A nil func always passes.
type HostVersionCheck func(clientVersion uint32) error

// Handshake drives one connection through VERSION then AUTH.
type Handshake struct {
	authr        *KeyAuthenticator
	hostCheck    HostVersionCheck
	state        State
	implicitPass bool
}

// NewHandshake starts a handshake in StateAwaitingVersion.
func NewHandshake(authr *KeyAuthenticator, hostCheck HostVersionCheck) *Handshake {
	return &Handshake{authr: authr, hostCheck: hostCheck, state: StateAwaitingVersion}
}

// State returns the handshake's current state.
func (h *Handshake) State() State { return h.state }

// HandleVersion processes a VERSION packet. On success the handshake
// advances to StateAwaitingAuth.
func (h *Handshake) HandleVersion(clientVersion uint32) error {
	if h.state != StateAwaitingVersion {
		return ErrUnexpectedPacket
	}
	if clientVersion < MinProtocolVersion {
		h.state = StateFailed
		return brlerr.New(brlerr.ProtocolVersion, "client protocol version too old")
	}
	if h.hostCheck != nil {
		if err := h.hostCheck(clientVersion); err != nil {
			h.state = StateFailed
			return brlerr.New(brlerr.ProtocolVersion, err.Error())
		}
		h.implicitPass = true
	}
	h.state = StateAwaitingAuth
	return nil
}

// Methods returns the AUTH methods to offer the client, computed from
// the implicit host check outcome and whether a key is configured (spec
// §4.3 step 2): {NONE} if an implicit check already passed or no key is
// configured, {KEY} if a key is configured, or {} only when the
// handshake has no authenticator at all.
func (h *Handshake) Methods() []Method {
	if h.implicitPass {
		return []Method{MethodNone}
	}
	if h.authr.HasKey() {
		return []Method{MethodKey}
	}
	if h.authr != nil {
		return []Method{MethodNone}
	}
	return nil
}

// HandleAuth processes an AUTH packet naming the client's chosen method
// and its credential payload (spec §4.3 step 3). NONE re-runs whatever
// implicit check admitted the VERSION step (or trivially passes if none
// is configured); KEY constant-time-compares payload against the loaded
// key file. On success the handshake advances to StateAuthed.
func (h *Handshake) HandleAuth(method Method, payload []byte) error {
	if h.state != StateAwaitingAuth {
		return ErrUnexpectedPacket
	}
	ok := false
	switch method {
	case MethodNone:
		ok = !h.authr.HasKey() || h.implicitPass
	case MethodKey:
		ok = h.authr.Verify(payload)
	}
	if !ok {
		h.state = StateFailed
		return brlerr.New(brlerr.Authentication, "authentication failed")
	}
	h.state = StateAuthed
	return nil
}

package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeHappyPath(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("s3cret"), 0o600))

	authr, err := LoadKeyFile(keyPath)
	require.NoError(t, err)

	h := NewHandshake(authr, nil)
	require.NoError(t, h.HandleVersion(MinProtocolVersion))
	require.Equal(t, StateAwaitingAuth, h.State())
	require.Equal(t, []Method{MethodKey}, h.Methods())
	require.NoError(t, h.HandleAuth(MethodKey, []byte("s3cret")))
	require.Equal(t, StateAuthed, h.State())
}

func TestHandshakeRejectsOldVersion(t *testing.T) {
	h := NewHandshake(NoAuth(), nil)
	err := h.HandleVersion(MinProtocolVersion - 1)
	require.Error(t, err)
	require.Equal(t, StateFailed, h.State())
}

func TestHandshakeRejectsWrongKey(t *testing.T) {
	authr := &KeyAuthenticator{key: []byte("right")}
	h := NewHandshake(authr, nil)
	require.NoError(t, h.HandleVersion(MinProtocolVersion))
	err := h.HandleAuth(MethodKey, []byte("wrong"))
	require.Error(t, err)
	require.Equal(t, StateFailed, h.State())
}

func TestHandshakeRejectsOutOfOrderPackets(t *testing.T) {
	h := NewHandshake(NoAuth(), nil)
	err := h.HandleAuth(MethodNone, []byte("x"))
	require.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestHostVersionCheckCanReject(t *testing.T) {
	rejected := errors.New("host policy rejects this client")
	h := NewHandshake(NoAuth(), func(uint32) error { return rejected })
	err := h.HandleVersion(MinProtocolVersion)
	require.Error(t, err)
	require.Equal(t, StateFailed, h.State())
}

func TestNoAuthAcceptsAnyKey(t *testing.T) {
	h := NewHandshake(NoAuth(), nil)
	require.NoError(t, h.HandleVersion(MinProtocolVersion))
	require.Equal(t, []Method{MethodNone}, h.Methods())
	require.NoError(t, h.HandleAuth(MethodNone, nil))
}

func TestMethodsOffersNoneWhenImplicitCheckPasses(t *testing.T) {
	h := NewHandshake(&KeyAuthenticator{key: []byte("right")}, func(uint32) error { return nil })
	require.NoError(t, h.HandleVersion(MinProtocolVersion))
	require.Equal(t, []Method{MethodNone}, h.Methods())
	require.NoError(t, h.HandleAuth(MethodNone, nil))
}

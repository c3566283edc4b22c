package params

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSetRoundTrip(t *testing.T) {
	e := NewEngine()
	var stored []byte
	e.Register(Descriptor{
		ID: ClientPriority,
		Read: func(connID string, sub uint64) ([]byte, error) {
			return stored, nil
		},
		Write: func(connID string, sub uint64, data []byte) error {
			stored = append([]byte(nil), data...)
			return nil
		},
	})

	require.NoError(t, e.Set("c1", ClientPriority, 0, []byte{5}, false, false))
	got, err := e.Get("c1", ClientPriority, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{5}, got)
}

func TestSetUnknownParameter(t *testing.T) {
	e := NewEngine()
	err := e.Set("c1", ID(999), 0, []byte{1}, false, false)
	require.Error(t, err)
}

func TestSetReadOnlyParameter(t *testing.T) {
	e := NewEngine()
	e.Register(Descriptor{
		ID:   ServerVersion,
		Read: func(string, uint64) ([]byte, error) { return []byte{2}, nil },
	})
	err := e.Set("c1", ServerVersion, 0, []byte{9}, false, false)
	require.Error(t, err)
}

func TestSubscribeRejectsLeaf(t *testing.T) {
	e := NewEngine()
	e.Register(Descriptor{ID: BoundCommandKeycodes})
	e.Register(Descriptor{ID: CommandKeycodeName, Root: BoundCommandKeycodes})

	require.NoError(t, e.Subscribe("c1", BoundCommandKeycodes, 0, 0))
	require.Error(t, e.Subscribe("c1", CommandKeycodeName, 0, 0))
}

func TestSubscriptionCounters(t *testing.T) {
	e := NewEngine()
	e.Register(Descriptor{ID: DisplaySize})

	require.NoError(t, e.Subscribe("c1", DisplaySize, 0, 0))
	require.NoError(t, e.Subscribe("c2", DisplaySize, 0, FlagGlobal))
	local, global := e.Counts(DisplaySize)
	require.Equal(t, 1, local)
	require.Equal(t, 1, global)

	e.UnsubscribeAll("c1")
	local, global = e.Counts(DisplaySize)
	require.Equal(t, 0, local)
	require.Equal(t, 1, global)
}

func TestBroadcastSkipsOriginWithoutSelfFlag(t *testing.T) {
	e := NewEngine()
	e.Register(Descriptor{
		ID:    RetainDots,
		Read:  func(string, uint64) ([]byte, error) { return nil, nil },
		Write: func(string, uint64, []byte) error { return nil },
	})

	notified := map[string]int{}
	e.SetNotifier(func(connID string, param ID, sub uint64, flags Flags, data []byte) {
		notified[connID]++
	})

	require.NoError(t, e.Subscribe("origin", RetainDots, 0, 0))
	require.NoError(t, e.Subscribe("other", RetainDots, 0, 0))

	require.NoError(t, e.Set("origin", RetainDots, 0, []byte{1}, false, false))
	require.Equal(t, 0, notified["origin"])
	require.Equal(t, 1, notified["other"])
}

func TestBroadcastHonoursSelfFlag(t *testing.T) {
	e := NewEngine()
	e.Register(Descriptor{
		ID:    RetainDots,
		Write: func(string, uint64, []byte) error { return nil },
	})

	notified := map[string]int{}
	e.SetNotifier(func(connID string, param ID, sub uint64, flags Flags, data []byte) {
		notified[connID]++
	})

	require.NoError(t, e.Subscribe("origin", RetainDots, 0, FlagSelf))
	require.NoError(t, e.Set("origin", RetainDots, 0, []byte{1}, false, true))
	require.Equal(t, 1, notified["origin"])
}

package server

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/brlapi/brlapi-core/internal/keyrange"
	"github.com/brlapi/brlapi-core/internal/params"
	"github.com/brlapi/brlapi-core/internal/wire"
)

// genericStore backs every parameter that has no live server-side state
// of its own (spec §4.8's free-form client/global settings like
// CURSOR_BLINK_PERIOD or MESSAGE_LOCALE): a plain last-write-wins value.
// Every write is stored both for the writing connection and as the
// shared value that connections which never wrote the parameter read;
// the request's GLOBAL flag plays no part in where it is stored.
type genericStore struct {
	mu     sync.Mutex
	local  map[string]map[params.ID][]byte
	global map[params.ID][]byte
}

func newGenericStore() *genericStore {
	return &genericStore{
		local:  make(map[string]map[params.ID][]byte),
		global: make(map[params.ID][]byte),
	}
}

func (g *genericStore) read(connID string, id params.ID) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.local[connID][id]; ok {
		return v
	}
	return g.global[id]
}

func (g *genericStore) write(connID string, id params.ID, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.local[connID] == nil {
		g.local[connID] = make(map[params.ID][]byte)
	}
	cp := append([]byte(nil), data...)
	g.local[connID][id] = cp
	g.global[id] = cp
}

func u32bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// RegisterParams wires the C8 descriptor table against this server's
// live state (registry, driver, arbitrator). Grounded on the teacher's
// cmd/server Handler() route table: one flat registration call per
// parameter, mirroring one mux.HandleFunc per route.
func (s *Server) RegisterParams() {
	s.Params.SetNotifier(s.notifyParamUpdate)
	store := newGenericStore()

	s.Params.Register(params.Descriptor{
		ID:   params.ServerVersion,
		Read: func(string, uint64) ([]byte, error) { return u32bytes(ProtocolVersion), nil },
	})

	s.Params.Register(params.Descriptor{
		ID: params.ClientPriority,
		Read: func(connID string, _ uint64) ([]byte, error) {
			c, ok := s.Registry.Get(connID)
			if !ok {
				return nil, errors.New("unknown connection")
			}
			return u32bytes(uint32(c.Priority())), nil
		},
		Write: func(connID string, _ uint64, data []byte) error {
			c, ok := s.Registry.Get(connID)
			if !ok {
				return errors.New("unknown connection")
			}
			if len(data) != 4 {
				return errors.New("CLIENT_PRIORITY requires a 4-byte value")
			}
			c.SetPriority(int(binary.BigEndian.Uint32(data)))
			return nil
		},
	})

	s.Params.Register(params.Descriptor{
		ID:   params.DriverName,
		Read: func(string, uint64) ([]byte, error) { return []byte(s.Driver.Name()), nil },
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DriverCode,
		Read: func(string, uint64) ([]byte, error) { return []byte(s.Driver.Code()), nil },
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DriverVersion,
		Read: func(string, uint64) ([]byte, error) { return []byte(s.Driver.Version()), nil },
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DeviceModel,
		Read: func(string, uint64) ([]byte, error) { return []byte(s.Driver.ModelIdentifier()), nil },
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DeviceIdentifier,
		Read: func(string, uint64) ([]byte, error) { return []byte(s.Driver.Identifier()), nil },
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DeviceSpeed,
		Read: func(string, uint64) ([]byte, error) { return u32bytes(s.Driver.Speed()), nil },
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DeviceCellSize,
		Read: func(string, uint64) ([]byte, error) { return u32bytes(uint32(s.Driver.CellSize())), nil },
	})
	s.Params.Register(params.Descriptor{
		ID: params.DisplaySize,
		Read: func(string, uint64) ([]byte, error) {
			cols, rows := s.Driver.DisplaySize()
			return append(u32bytes(uint32(cols)), u32bytes(uint32(rows))...), nil
		},
	})
	s.Params.Register(params.Descriptor{
		ID: params.DeviceOnline,
		Read: func(string, uint64) ([]byte, error) {
			if s.Arb.Offline() {
				return []byte{0}, nil
			}
			return []byte{1}, nil
		},
	})

	s.Params.Register(params.Descriptor{
		ID: params.RetainDots,
		Read: func(connID string, _ uint64) ([]byte, error) {
			c, ok := s.Registry.Get(connID)
			if !ok {
				return nil, errors.New("unknown connection")
			}
			if c.RetainDots() {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		},
		Write: func(connID string, _ uint64, data []byte) error {
			c, ok := s.Registry.Get(connID)
			if !ok {
				return errors.New("unknown connection")
			}
			c.SetRetainDots(len(data) > 0 && data[0] != 0)
			return nil
		},
	})

	// The remaining parameters have no dedicated server-side behavior
	// beyond holding whatever value a client last wrote (spec §4.8's
	// plain client/global settings); they share one generic read/write
	// pair backed by genericStore.
	genericParams := []params.ID{
		params.ComputerBrailleCellSize,
		params.LiteraryBraille,
		params.CursorDots,
		params.CursorBlinkPeriod,
		params.CursorBlinkPercentage,
		params.RenderedCells,
		params.SkipIdenticalLines,
		params.AudibleAlerts,
		params.ClipboardContent,
		params.ComputerBrailleRowsMask,
		params.ComputerBrailleRowCells,
		params.ComputerBrailleTable,
		params.LiteraryBrailleTable,
		params.MessageLocale,
	}
	for _, id := range genericParams {
		id := id
		s.Params.Register(params.Descriptor{
			ID: id,
			Read: func(connID string, _ uint64) ([]byte, error) {
				return store.read(connID, id), nil
			},
			Write: func(connID string, _ uint64, data []byte) error {
				store.write(connID, id, data)
				return nil
			},
		})
	}

	s.Params.Register(params.Descriptor{
		ID: params.BoundCommandKeycodes,
		Read: func(connID string, _ uint64) ([]byte, error) {
			c, ok := s.Registry.Get(connID)
			if !ok {
				return nil, errors.New("unknown connection")
			}
			var out []byte
			for _, r := range c.AcceptedKeys().Ranges() {
				var b [16]byte
				binary.BigEndian.PutUint64(b[0:8], r.First)
				binary.BigEndian.PutUint64(b[8:16], r.Last)
				out = append(out, b[:]...)
			}
			return out, nil
		},
	})
	s.Params.Register(params.Descriptor{
		ID:   params.CommandKeycodeName,
		Root: params.BoundCommandKeycodes,
		Read: func(connID string, sub uint64) ([]byte, error) {
			cmd := wire.Unpack(wire.KeyCode(sub)).Command
			return []byte(keyrange.CommandName(cmd)), nil
		},
	})
	s.Params.Register(params.Descriptor{
		ID:   params.CommandKeycodeSummary,
		Root: params.BoundCommandKeycodes,
		Read: func(connID string, sub uint64) ([]byte, error) {
			cmd := wire.Unpack(wire.KeyCode(sub)).Command
			return []byte(keyrange.CommandSummary(cmd)), nil
		},
	})

	s.Params.Register(params.Descriptor{
		ID: params.DefinedDriverKeycodes,
		Read: func(string, uint64) ([]byte, error) {
			return nil, nil
		},
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DriverKeycodeName,
		Root: params.DefinedDriverKeycodes,
		Read: func(_ string, sub uint64) ([]byte, error) {
			group, number := byte(sub>>8), byte(sub)
			return []byte(s.Driver.KeyName(group, number)), nil
		},
	})
	s.Params.Register(params.Descriptor{
		ID:   params.DriverKeycodeSummary,
		Root: params.DefinedDriverKeycodes,
		Read: func(_ string, sub uint64) ([]byte, error) {
			group, number := byte(sub>>8), byte(sub)
			return []byte(s.Driver.KeySummary(group, number)), nil
		},
	})
}

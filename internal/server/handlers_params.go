package server

import (
	"github.com/brlapi/brlapi-core/internal/brlerr"
	"github.com/brlapi/brlapi-core/internal/params"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

// handleParamValue decodes a VALUE packet: u32 param id, u64 subparam,
// u8 flags (bit0 global, bit1 self), u32 data length, data (spec §4.8).
func (s *Server) handleParamValue(c *registry.Connection, p wire.Packet) error {
	cur := wire.NewCursor(p.Payload)
	id, err := cur.U32()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_VALUE"))
	}
	sub, err := cur.U64()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_VALUE"))
	}
	flagByte, err := cur.U8()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_VALUE"))
	}
	dataLen, err := cur.U32()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_VALUE"))
	}
	data, err := cur.Bytes(int(dataLen))
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "truncated PARAM_VALUE"))
	}

	flags := params.Flags(flagByte)
	global := flags&params.FlagGlobal != 0
	self := flags&params.FlagSelf != 0

	if id == uint32(params.ClientPriority) {
		// Re-sorting the tty node's connection list is this package's
		// responsibility, not the params engine's (spec §4.8) — the write
		// handler updates the priority field, then this hook re-sorts.
		defer s.Registry.Reorder(c)
	}

	if err := s.Params.Set(c.ID, params.ID(id), sub, data, global, self); err != nil {
		return replyErr(c, p.Type, err)
	}
	return ack(c)
}

// handleParamRequest decodes a REQUEST packet: u32 param id, u64
// subparam, u8 flags (bit0 global, bit1 self, bit2 get, bit3 subscribe,
// bit4 unsubscribe). Get and subscribe/unsubscribe may combine in one
// request (spec §4.8).
func (s *Server) handleParamRequest(c *registry.Connection, p wire.Packet) error {
	cur := wire.NewCursor(p.Payload)
	id, err := cur.U32()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_REQUEST"))
	}
	sub, err := cur.U64()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_REQUEST"))
	}
	flagByte, err := cur.U8()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short PARAM_REQUEST"))
	}

	flags := params.Flags(flagByte)
	paramID := params.ID(id)

	if flags&params.FlagSubscribe != 0 {
		if err := s.Params.Subscribe(c.ID, paramID, sub, flags); err != nil {
			return replyErr(c, p.Type, err)
		}
	}
	if flags&params.FlagUnsubscribe != 0 {
		if err := s.Params.Unsubscribe(c.ID, paramID, sub, flags&params.FlagGlobal != 0); err != nil {
			return replyErr(c, p.Type, err)
		}
	}

	if flags&params.FlagGet != 0 {
		value, err := s.Params.Get(c.ID, paramID, sub)
		if err != nil {
			return replyErr(c, p.Type, err)
		}
		var b wire.Builder
		b.PutU32(id).PutU64(sub).PutU8(flagByte).PutU32(uint32(len(value))).PutBytes(value)
		return c.Send(wire.Packet{Type: wire.TypeParamValue, Payload: b.Bytes()})
	}

	return ack(c)
}

// notifyParamUpdate is installed as the params engine's NotifyFunc: it
// looks the subscriber up by connection id and sends it a PARAM_UPDATE
// (spec §4.8 "broadcast").
func (s *Server) notifyParamUpdate(connID string, id params.ID, sub uint64, flags params.Flags, data []byte) {
	c, ok := s.Registry.Get(connID)
	if !ok {
		return
	}
	var b wire.Builder
	b.PutU32(uint32(id)).PutU64(sub).PutU8(byte(flags)).PutU32(uint32(len(data))).PutBytes(data)
	if err := c.Send(wire.Packet{Type: wire.TypeParamUpdate, Payload: b.Bytes()}); err != nil {
		s.Logger.Printf("server: PARAM_UPDATE delivery to %s: %v", connID, err)
	}
}

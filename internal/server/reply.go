package server

import (
	"errors"

	"github.com/brlapi/brlapi-core/internal/brlerr"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

func ack(c *registry.Connection) error {
	return c.Send(wire.Packet{Type: wire.TypeAck})
}

// replyErr reports a failure to the peer: an EXCEPTION when the error
// names its offending packet type, otherwise a plain ERROR (spec §4.1).
func replyErr(c *registry.Connection, reqType wire.Type, err error) error {
	var we *brlerr.WireError
	if errors.As(err, &we) {
		if we.HasType {
			var b wire.Builder
			b.PutU32(uint32(we.Code)).PutU32(we.Offending)
			return c.Send(wire.Packet{Type: wire.TypeException, Payload: b.Bytes()})
		}
		return c.SendError(uint32(we.Code))
	}
	return c.SendError(uint32(brlerr.InvalidPacket))
}

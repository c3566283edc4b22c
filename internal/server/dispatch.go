package server

import (
	"context"

	"github.com/brlapi/brlapi-core/internal/auth"
	"github.com/brlapi/brlapi-core/internal/brlerr"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

// dispatch routes one decoded packet to its handler. A returned
// errFatalHandshake means the caller must close the connection; any
// other returned error has already been reported to the peer.
func (s *Server) dispatch(ctx context.Context, c *registry.Connection, hs *auth.Handshake, p wire.Packet) error {
	if hs.State() != auth.StateAuthed {
		return s.dispatchHandshake(c, hs, p)
	}

	switch p.Type {
	case wire.TypeGetDriverName:
		return s.handleGetDriverName(c)
	case wire.TypeGetModelID:
		return s.handleGetModelID(c)
	case wire.TypeGetDisplaySize:
		return s.handleGetDisplaySize(c)
	case wire.TypeEnterTTYMode:
		return s.handleEnterTTYMode(ctx, c, p)
	case wire.TypeSetFocus:
		return s.handleSetFocus(c, p)
	case wire.TypeLeaveTTYMode:
		return s.handleLeaveTTYMode(ctx, c)
	case wire.TypeIgnoreKeyRanges:
		return s.handleKeyRanges(c, p, false)
	case wire.TypeAcceptKeyRanges:
		return s.handleKeyRanges(c, p, true)
	case wire.TypeWrite:
		return s.handleWrite(ctx, c, p)
	case wire.TypeEnterRawMode:
		return s.handleEnterRaw(c)
	case wire.TypeLeaveRawMode:
		return s.handleLeaveRaw(ctx, c)
	case wire.TypeSuspendDriver:
		return s.handleSuspend(ctx, c)
	case wire.TypeResumeDriver:
		return s.handleResume(ctx, c)
	case wire.TypePacket:
		return s.handlePacket(ctx, c, p)
	case wire.TypeParamValue:
		return s.handleParamValue(c, p)
	case wire.TypeParamRequest:
		return s.handleParamRequest(c, p)
	case wire.TypeSynchronize:
		return ack(c)
	default:
		return replyErr(c, p.Type, brlerr.NewException(brlerr.UnknownInstruction, uint32(p.Type), "unrecognized packet type"))
	}
}

func (s *Server) dispatchHandshake(c *registry.Connection, hs *auth.Handshake, p wire.Packet) error {
	switch p.Type {
	case wire.TypeVersion:
		cur := wire.NewCursor(p.Payload)
		v, err := cur.U32()
		if err != nil {
			replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short VERSION packet"))
			return errFatalHandshake
		}
		if err := hs.HandleVersion(v); err != nil {
			replyErr(c, p.Type, err)
			return errFatalHandshake
		}
		c.SetProtocolVersion(v)
		var b wire.Builder
		for _, m := range hs.Methods() {
			b.PutU32(uint32(m))
		}
		return c.Send(wire.Packet{Type: wire.TypeAuth, Payload: b.Bytes()})

	case wire.TypeAuth:
		cur := wire.NewCursor(p.Payload)
		method, err := cur.U32()
		if err != nil {
			replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short AUTH packet"))
			return errFatalHandshake
		}
		payload := p.Payload[4:]
		if err := hs.HandleAuth(auth.Method(method), payload); err != nil {
			replyErr(c, p.Type, err)
			return errFatalHandshake
		}
		c.SetAuth(registry.AuthAuthed)
		s.Registry.MarkAuthed()
		return ack(c)

	default:
		replyErr(c, p.Type, brlerr.New(brlerr.IllegalInstruction, "VERSION/AUTH required before any other packet"))
		return errFatalHandshake
	}
}

package server

import (
	"context"

	"github.com/brlapi/brlapi-core/internal/brlerr"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

// handleEnterTTYMode decodes ENTERTTYMODE: u8 how (0 commands, 1 driver
// key codes), u32 path length, then that many u32 tty ids from the root
// down (spec §3 "Lifecycle").
func (s *Server) handleEnterTTYMode(ctx context.Context, c *registry.Connection, p wire.Packet) error {
	cur := wire.NewCursor(p.Payload)
	howByte, err := cur.U8()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short ENTERTTYMODE"))
	}
	pathLen, err := cur.U32()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short ENTERTTYMODE"))
	}
	path := make([]uint32, 0, pathLen)
	for i := uint32(0); i < pathLen; i++ {
		id, err := cur.U32()
		if err != nil {
			return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "truncated tty path"))
		}
		path = append(path, id)
	}

	how := registry.HowCommands
	if howByte == 1 {
		how = registry.HowDriverKeyCodes
	}

	node := s.Registry.EnterTTYMode(c, path, how, s.displaySize())
	if len(path) > 0 {
		s.mu.Lock()
		if s.rootFocus == 0 {
			s.rootFocus = path[0]
		}
		s.mu.Unlock()
	}
	_ = node

	if err := s.flush(ctx); err != nil {
		s.Logger.Printf("server: flush after ENTERTTYMODE: %v", err)
	}
	return ack(c)
}

// handleSetFocus decodes SETFOCUS: u32 child id to focus within c's
// current tty node (spec §4.7).
func (s *Server) handleSetFocus(c *registry.Connection, p wire.Packet) error {
	cur := wire.NewCursor(p.Payload)
	id, err := cur.U32()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short SETFOCUS"))
	}
	s.Registry.SetFocus(c, id)
	return ack(c)
}

func (s *Server) handleLeaveTTYMode(ctx context.Context, c *registry.Connection) error {
	s.Registry.LeaveTTYMode(c)
	if err := s.flush(ctx); err != nil {
		s.Logger.Printf("server: flush after LEAVETTYMODE: %v", err)
	}
	return ack(c)
}

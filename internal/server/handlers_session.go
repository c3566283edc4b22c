package server

import (
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

func (s *Server) handleGetDriverName(c *registry.Connection) error {
	var b wire.Builder
	b.PutNulString(s.Driver.Name())
	return c.Send(wire.Packet{Type: wire.TypeGetDriverName, Payload: b.Bytes()})
}

func (s *Server) handleGetModelID(c *registry.Connection) error {
	var b wire.Builder
	b.PutNulString(s.Driver.ModelIdentifier())
	return c.Send(wire.Packet{Type: wire.TypeGetModelID, Payload: b.Bytes()})
}

func (s *Server) handleGetDisplaySize(c *registry.Connection) error {
	cols, rows := s.Driver.DisplaySize()
	var b wire.Builder
	b.PutU32(uint32(cols)).PutU32(uint32(rows))
	return c.Send(wire.Packet{Type: wire.TypeGetDisplaySize, Payload: b.Bytes()})
}

func (s *Server) displaySize() int {
	cols, rows := s.Driver.DisplaySize()
	return cols * rows
}

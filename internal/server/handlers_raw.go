package server

import (
	"context"
	"time"

	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

func (s *Server) handleEnterRaw(c *registry.Connection) error {
	if err := s.Arb.EnterRaw(c, s.Driver); err != nil {
		return replyErr(c, wire.TypeEnterRawMode, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.rawStop[c.ID] = cancel
	s.mu.Unlock()
	go s.rawForwardLoop(ctx, c)

	return ack(c)
}

// rawForwardLoop relays driver-originated packets to the raw owner for
// as long as it holds raw mode (spec §4.9 "bidirectional tunnel").
func (s *Server) rawForwardLoop(ctx context.Context, c *registry.Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		data, ok, err := s.Driver.ReadPacket(ctx)
		if err != nil {
			s.Logger.Printf("server: raw read for %s: %v", c.ID, err)
			return
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		if err := c.Send(wire.Packet{Type: wire.TypePacket, Payload: data}); err != nil {
			return
		}
	}
}

func (s *Server) handleLeaveRaw(ctx context.Context, c *registry.Connection) error {
	s.mu.Lock()
	if cancel, ok := s.rawStop[c.ID]; ok {
		cancel()
		delete(s.rawStop, c.ID)
	}
	s.mu.Unlock()

	if err := s.Arb.LeaveRaw(c, s.Driver); err != nil {
		return replyErr(c, wire.TypeLeaveRawMode, err)
	}
	if err := s.flush(ctx); err != nil {
		s.Logger.Printf("server: flush after LEAVERAWMODE: %v", err)
	}
	return ack(c)
}

func (s *Server) handleSuspend(ctx context.Context, c *registry.Connection) error {
	if err := s.Arb.Suspend(ctx, c, s.Driver); err != nil {
		return replyErr(c, wire.TypeSuspendDriver, err)
	}
	return ack(c)
}

func (s *Server) handleResume(ctx context.Context, c *registry.Connection) error {
	if err := s.Arb.Resume(c); err != nil {
		return replyErr(c, wire.TypeResumeDriver, err)
	}
	if err := s.flush(ctx); err != nil {
		s.Logger.Printf("server: flush after RESUMEDRIVER: %v", err)
	}
	return ack(c)
}

func (s *Server) handlePacket(ctx context.Context, c *registry.Connection, p wire.Packet) error {
	if err := s.Arb.ForwardPacket(ctx, c, s.Driver, p.Payload); err != nil {
		return replyErr(c, p.Type, err)
	}
	return nil
}

package server

import (
	"context"
	"time"

	"github.com/brlapi/brlapi-core/internal/wire"
)

// CommandPumpInterval is how often RunCommandPump polls the driver for
// a new key/command event (spec §4.11).
const CommandPumpInterval = 15 * time.Millisecond

// RunCommandPump polls the driver for key events and delivers each to
// whichever connection currently holds focus, filtered by that
// connection's accepted-key set (spec §4.5, §4.11). It steps aside
// entirely while raw or suspend holds the device (Selected returns nil).
func (s *Server) RunCommandPump(ctx context.Context) {
	ticker := time.NewTicker(CommandPumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pumpOnce(ctx)
		}
	}
}

func (s *Server) pumpOnce(ctx context.Context) {
	cmd, ok, err := s.Driver.ReadCommand(ctx)
	if err != nil {
		s.Logger.Printf("server: ReadCommand: %v", err)
		return
	}
	if !ok {
		return
	}

	target := s.Arb.Selected(s.Registry, s.RootFocus())
	if target == nil {
		return
	}

	code := wire.FromDriverForm(cmd.Group, cmd.Number, cmd.Press)
	accepted := target.AcceptedKeys()
	if accepted == nil || !accepted.Contains(code) {
		return
	}

	var b wire.Builder
	b.PutU64(uint64(code))
	if err := target.Send(wire.Packet{Type: wire.TypeKey, Payload: b.Bytes()}); err != nil {
		s.Logger.Printf("server: key delivery to %s: %v", target.ID, err)
	}
}

package server

import (
	"github.com/brlapi/brlapi-core/internal/brlerr"
	"github.com/brlapi/brlapi-core/internal/keyrange"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

// handleKeyRanges decodes IGNOREKEYRANGES/ACCEPTKEYRANGES: u32 pair
// count, then that many (u64 first, u64 last) intervals (spec §4.5).
func (s *Server) handleKeyRanges(c *registry.Connection, p wire.Packet, accept bool) error {
	cur := wire.NewCursor(p.Payload)
	count, err := cur.U32()
	if err != nil {
		return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "short key range packet"))
	}

	type pair struct{ first, last uint64 }
	pairs := make([]pair, 0, count)
	for i := uint32(0); i < count; i++ {
		first, err := cur.U64()
		if err != nil {
			return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "truncated key range"))
		}
		last, err := cur.U64()
		if err != nil {
			return replyErr(c, p.Type, brlerr.New(brlerr.InvalidPacket, "truncated key range"))
		}
		pairs = append(pairs, pair{first, last})
	}

	if accept && c.How() == registry.HowCommands {
		for _, pr := range pairs {
			if overlapsPrivileged(pr.first, pr.last) {
				return replyErr(c, p.Type, brlerr.New(brlerr.InvalidParameter, "cannot accept a privileged command range"))
			}
		}
	}

	c.WithAcceptedKeys(func(set *keyrange.Set) {
		for _, pr := range pairs {
			if accept {
				set.Accept(pr.first, pr.last)
			} else {
				set.Ignore(pr.first, pr.last)
			}
		}
	})
	return ack(c)
}

// overlapsPrivileged reports whether [first,last] contains the press or
// the release key code of any privileged command (spec §4.5). Each code
// is checked on its own; the codes lying between a command's release and
// press codes are not privileged.
func overlapsPrivileged(first, last uint64) bool {
	for _, cmd := range keyrange.PrivilegedCommands {
		press := wire.Pack(wire.Fields{Type: wire.KeyTypeCommand, Command: cmd, Press: true})
		release := wire.Pack(wire.Fields{Type: wire.KeyTypeCommand, Command: cmd, Press: false})
		for _, code := range []uint64{uint64(release), uint64(press)} {
			if first <= code && code <= last {
				return true
			}
		}
	}
	return false
}

package server

import (
	"context"

	"github.com/brlapi/brlapi-core/internal/brlerr"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/window"
	"github.com/brlapi/brlapi-core/internal/wire"
)

const (
	writeFlagRegion = 1 << iota
	writeFlagText
	writeFlagAndAttr
	writeFlagOrAttr
	writeFlagCursor
)

// decodeWrite parses a WRITE payload: a u8 flag byte followed by
// whichever of region/text/andAttr/orAttr/cursor the flags name (spec
// §4.6).
func decodeWrite(payload []byte) (window.WriteInput, error) {
	cur := wire.NewCursor(payload)
	flags, err := cur.U8()
	if err != nil {
		return window.WriteInput{}, brlerr.New(brlerr.InvalidPacket, "short WRITE")
	}

	var in window.WriteInput

	if flags&writeFlagRegion != 0 {
		begin, err := cur.U32()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE region")
		}
		size, err := cur.S32()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE region")
		}
		in.HasRegion = true
		in.Region = window.Region{Begin: int(begin), Size: int(size)}
	}

	if flags&writeFlagText != 0 {
		charset, err := cur.LenString()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE charset")
		}
		textLen, err := cur.U32()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE text length")
		}
		text, err := cur.Bytes(int(textLen))
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE text")
		}
		in.HasText = true
		in.Text = append([]byte(nil), text...)
		in.Charset = charset
	}

	if flags&writeFlagAndAttr != 0 {
		n, err := cur.U32()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE andAttr length")
		}
		b, err := cur.Bytes(int(n))
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE andAttr")
		}
		in.AndAttr = append([]byte(nil), b...)
	}

	if flags&writeFlagOrAttr != 0 {
		n, err := cur.U32()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE orAttr length")
		}
		b, err := cur.Bytes(int(n))
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE orAttr")
		}
		in.OrAttr = append([]byte(nil), b...)
	}

	if flags&writeFlagCursor != 0 {
		cursor, err := cur.U32()
		if err != nil {
			return in, brlerr.New(brlerr.InvalidPacket, "truncated WRITE cursor")
		}
		in.HasCursor = true
		in.Cursor = int(cursor)
	}

	return in, nil
}

func (s *Server) handleWrite(ctx context.Context, c *registry.Connection, p wire.Packet) error {
	if c.Mode() != registry.ModeAttached {
		return replyErr(c, p.Type, brlerr.New(brlerr.IllegalInstruction, "WRITE requires tty mode"))
	}

	in, err := decodeWrite(p.Payload)
	if err != nil {
		return replyErr(c, p.Type, err)
	}

	var applyErr error
	c.WithWindow(func(w *window.Window) {
		applyErr = w.Apply(in)
	})
	if applyErr != nil {
		return replyErr(c, p.Type, applyErr)
	}

	c.SetBufferState(registry.BufferToDisplay)
	if err := s.flush(ctx); err != nil {
		s.Logger.Printf("server: flush after WRITE: %v", err)
	}
	return ack(c)
}

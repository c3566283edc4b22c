// Package wire implements the BrlAPI frame codec (component C1): a fixed
// (length, type) header in network byte order followed by exactly length
// payload bytes, plus the per-connection accumulator that turns a stream
// of non-blocking reads into whole packets.
//
// The accumulator is modeled on the teacher's internal/ws Client read
// pump: a small piece of state carried across wake-ups that knows how to
// tell "not enough data yet" from "here is one complete unit."
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type is the u32 packet type tag.
type Type uint32

const (
	TypeVersion Type = iota + 1
	TypeAuth
	TypeGetDriverName
	TypeGetModelID
	TypeGetDisplaySize
	TypeEnterTTYMode
	TypeSetFocus
	TypeLeaveTTYMode
	TypeIgnoreKeyRanges
	TypeAcceptKeyRanges
	TypeWrite
	TypeEnterRawMode
	TypeLeaveRawMode
	TypeSuspendDriver
	TypeResumeDriver
	TypePacket
	TypeParamValue
	TypeParamRequest
	TypeParamUpdate
	TypeSynchronize
	TypeAck
	TypeError
	TypeException
	TypeKey
)

// MaxPacketSize bounds the payload length accepted on the wire.
const MaxPacketSize = 4096

// HeaderSize is the length of the (u32 length, u32 type) frame header.
const HeaderSize = 8

// Packet is a fully decoded frame.
type Packet struct {
	Type    Type
	Payload []byte
}

// ErrShortPacket is returned when a payload is smaller than the minimum
// required for its declared type.
var ErrShortPacket = fmt.Errorf("wire: short packet")

// ErrOversize is returned when a declared payload length exceeds
// MaxPacketSize. The frame is discarded; the connection is not torn down.
var ErrOversize = fmt.Errorf("wire: oversize packet")

// ErrPeerClosed is returned when the stream ends mid-frame.
var ErrPeerClosed = fmt.Errorf("wire: peer closed mid-frame")

// Encode writes one frame to w.
func Encode(w io.Writer, p Packet) error {
	if len(p.Payload) > MaxPacketSize {
		return ErrOversize
	}
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(p.Payload)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(p.Type))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(p.Payload) == 0 {
		return nil
	}
	_, err := w.Write(p.Payload)
	return err
}

// Reader accumulates bytes fed to it (e.g. from successive non-blocking
// socket reads) and yields whole packets as soon as they are available.
// It is not safe for concurrent use; one Reader belongs to one connection.
type Reader struct {
	buf []byte
}

// Feed appends newly-read bytes and extracts as many complete packets as
// are now available. Partial data (including a header without its full
// payload) is retained for the next call. An oversize declared length
// discards just that frame's bytes and returns ErrOversize alongside any
// packets decoded before it; the caller should report the error to the
// peer and keep reading.
func (r *Reader) Feed(data []byte) ([]Packet, error) {
	r.buf = append(r.buf, data...)

	var out []Packet
	var oversizeErr error

	for {
		if len(r.buf) < HeaderSize {
			break
		}
		length := binary.BigEndian.Uint32(r.buf[0:4])
		typ := Type(binary.BigEndian.Uint32(r.buf[4:8]))

		if length > MaxPacketSize {
			// Discard the header; we cannot know where the oversize
			// payload ends without trusting its own length, so we trust
			// it for skip purposes only, never for allocation.
			total := HeaderSize + int(length)
			if len(r.buf) < total {
				// Wait for the rest before we can skip past it.
				oversizeErr = ErrOversize
				break
			}
			r.buf = r.buf[total:]
			oversizeErr = ErrOversize
			continue
		}

		total := HeaderSize + int(length)
		if len(r.buf) < total {
			break
		}

		payload := make([]byte, length)
		copy(payload, r.buf[HeaderSize:total])
		r.buf = r.buf[total:]
		out = append(out, Packet{Type: typ, Payload: payload})
	}

	return out, oversizeErr
}

// Pending reports whether partial (header or payload) data is currently
// buffered, waiting for a future Feed call.
func (r *Reader) Pending() bool {
	return len(r.buf) > 0
}

// --- network byte order helpers over a byte cursor ---

// Cursor reads big-endian fields out of a payload, tracking position and
// turning short reads into ErrShortPacket instead of a panic.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps payload for sequential decoding.
func NewCursor(payload []byte) *Cursor {
	return &Cursor{buf: payload}
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) need(n int) error {
	if c.Remaining() < n {
		return ErrShortPacket
	}
	return nil
}

// U32 reads one big-endian uint32.
func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

// S32 reads one big-endian signed int32.
func (c *Cursor) S32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}

// U64 reads one big-endian uint64.
func (c *Cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

// U8 reads one byte.
func (c *Cursor) U8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// LenString reads a u8 length prefix followed by that many bytes, the
// shape used for driver names and charset names throughout §6.
func (c *Cursor) LenString() (string, error) {
	n, err := c.U8()
	if err != nil {
		return "", err
	}
	b, err := c.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NulString reads a NUL-terminated string (server→client driver name /
// model id replies).
func (c *Cursor) NulString() (string, error) {
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			s := string(c.buf[c.pos:i])
			c.pos = i + 1
			return s, nil
		}
	}
	return "", ErrShortPacket
}

// Builder accumulates big-endian fields into a payload.
type Builder struct {
	buf []byte
}

// PutU32 appends a big-endian uint32.
func (b *Builder) PutU32(v uint32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// PutS32 appends a big-endian signed int32.
func (b *Builder) PutS32(v int32) *Builder {
	return b.PutU32(uint32(v))
}

// PutU64 appends a big-endian uint64.
func (b *Builder) PutU64(v uint64) *Builder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// PutU8 appends one byte.
func (b *Builder) PutU8(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// PutBytes appends raw bytes verbatim.
func (b *Builder) PutBytes(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// PutNulString appends s followed by a NUL terminator.
func (b *Builder) PutNulString(s string) *Builder {
	b.buf = append(b.buf, []byte(s)...)
	b.buf = append(b.buf, 0)
	return b
}

// PutLenString appends a u8 length prefix followed by s.
func (b *Builder) PutLenString(s string) *Builder {
	b.PutU8(byte(len(s)))
	b.buf = append(b.buf, []byte(s)...)
	return b
}

// Bytes returns the accumulated payload.
func (b *Builder) Bytes() []byte {
	return b.buf
}

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Packet{Type: TypeWrite, Payload: []byte("hello")}))

	var r Reader
	packets, err := r.Feed(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.Equal(t, TypeWrite, packets[0].Type)
	require.Equal(t, []byte("hello"), packets[0].Payload)
	require.False(t, r.Pending())
}

func TestEncodeEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Packet{Type: TypeSynchronize}))
	require.Equal(t, HeaderSize, buf.Len())
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, Packet{Type: TypeWrite, Payload: make([]byte, MaxPacketSize+1)})
	require.ErrorIs(t, err, ErrOversize)
}

func TestFeedAccumulatesPartialHeader(t *testing.T) {
	var r Reader
	packets, err := r.Feed([]byte{0, 0, 0})
	require.NoError(t, err)
	require.Empty(t, packets)
	require.True(t, r.Pending())
}

func TestFeedAccumulatesPartialPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Packet{Type: TypeWrite, Payload: []byte("hello")}))
	whole := buf.Bytes()

	var r Reader
	packets, err := r.Feed(whole[:HeaderSize+2])
	require.NoError(t, err)
	require.Empty(t, packets)
	require.True(t, r.Pending())

	packets, err = r.Feed(whole[HeaderSize+2:])
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.Equal(t, []byte("hello"), packets[0].Payload)
}

func TestFeedYieldsMultiplePacketsFromOneChunk(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Packet{Type: TypeSynchronize}))
	require.NoError(t, Encode(&buf, Packet{Type: TypeAck}))

	var r Reader
	packets, err := r.Feed(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, packets, 2)
	require.Equal(t, TypeSynchronize, packets[0].Type)
	require.Equal(t, TypeAck, packets[1].Type)
}

func TestFeedRejectsOversizeDeclaredLengthAcrossTwoCalls(t *testing.T) {
	var hdr [HeaderSize]byte
	length := uint32(MaxPacketSize + 16)
	hdr[0] = byte(length >> 24)
	hdr[1] = byte(length >> 16)
	hdr[2] = byte(length >> 8)
	hdr[3] = byte(length)
	hdr[7] = byte(TypeWrite)

	var r Reader
	// The header alone already declares an oversize length, so Feed
	// reports ErrOversize right away even though it cannot discard the
	// frame's bytes until the rest arrives.
	packets, err := r.Feed(hdr[:])
	require.ErrorIs(t, err, ErrOversize)
	require.Empty(t, packets)
	require.True(t, r.Pending())

	packets, err = r.Feed(make([]byte, length))
	require.ErrorIs(t, err, ErrOversize)
	require.Empty(t, packets)
	require.False(t, r.Pending())
}

func TestFeedRecoversAfterOversizeFrame(t *testing.T) {
	var hdr [HeaderSize]byte
	length := uint32(MaxPacketSize + 1)
	hdr[3] = byte(length)
	hdr[1] = byte(length >> 16)
	hdr[2] = byte(length >> 8)
	hdr[0] = byte(length >> 24)
	hdr[7] = byte(TypeWrite)

	var r Reader
	full := append(hdr[:], make([]byte, length)...)

	var good bytes.Buffer
	require.NoError(t, Encode(&good, Packet{Type: TypeAck}))
	full = append(full, good.Bytes()...)

	packets, err := r.Feed(full)
	require.ErrorIs(t, err, ErrOversize)
	require.Len(t, packets, 1)
	require.Equal(t, TypeAck, packets[0].Type)
}

func TestCursorReadsSequentialFields(t *testing.T) {
	var b Builder
	b.PutU32(42).PutU64(1 << 40).PutU8(7).PutBytes([]byte("xy")).PutLenString("abc").PutNulString("def")

	c := NewCursor(b.Bytes())
	u32, err := c.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), u32)

	u64, err := c.U64()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), u64)

	u8, err := c.U8()
	require.NoError(t, err)
	require.Equal(t, byte(7), u8)

	raw, err := c.Bytes(2)
	require.NoError(t, err)
	require.Equal(t, []byte("xy"), raw)

	ls, err := c.LenString()
	require.NoError(t, err)
	require.Equal(t, "abc", ls)

	ns, err := c.NulString()
	require.NoError(t, err)
	require.Equal(t, "def", ns)

	require.Equal(t, 0, c.Remaining())
}

func TestCursorShortReadsReturnErrShortPacket(t *testing.T) {
	c := NewCursor([]byte{1, 2})
	_, err := c.U32()
	require.ErrorIs(t, err, ErrShortPacket)

	c = NewCursor(nil)
	_, err = c.U8()
	require.ErrorIs(t, err, ErrShortPacket)

	c = NewCursor([]byte("no-nul-here"))
	_, err = c.NulString()
	require.ErrorIs(t, err, ErrShortPacket)
}

func TestKeyCodePackUnpackCommand(t *testing.T) {
	f := Fields{Press: true, Type: KeyTypeCommand, Command: 0x123456}
	code := Pack(f)
	got := Unpack(code)
	require.True(t, got.Press)
	require.Equal(t, KeyTypeCommand, got.Type)
	require.Equal(t, uint32(0x123456), got.Command)
}

func TestKeyCodePackUnpackDriver(t *testing.T) {
	f := Fields{Press: false, Type: KeyTypeDriver, Group: 3, Number: 200}
	code := Pack(f)
	got := Unpack(code)
	require.False(t, got.Press)
	require.Equal(t, KeyTypeDriver, got.Type)
	require.Equal(t, uint8(3), got.Group)
	require.Equal(t, uint8(200), got.Number)
}

func TestFromDriverFormMatchesPack(t *testing.T) {
	code := FromDriverForm(5, 9, true)
	got := Unpack(code)
	require.Equal(t, KeyTypeDriver, got.Type)
	require.True(t, got.Press)
	require.Equal(t, uint8(5), got.Group)
	require.Equal(t, uint8(9), got.Number)
}

func TestDriverFormPressBit(t *testing.T) {
	released := DriverForm(1, 2, false)
	pressed := DriverForm(1, 2, true)
	require.NotEqual(t, released, pressed)
	require.Equal(t, released|(uint64(1)<<63), pressed)
}

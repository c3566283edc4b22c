package brlerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuildsPlainError(t *testing.T) {
	err := New(InvalidPacket, "bad region")
	require.Equal(t, InvalidPacket, err.Code)
	require.False(t, err.HasType)
	require.Equal(t, "INVALID_PACKET: bad region", err.Error())
}

func TestNewWithoutReasonOmitsColon(t *testing.T) {
	err := New(DeviceBusy, "")
	require.Equal(t, "DEVICEBUSY", err.Error())
}

func TestNewExceptionCarriesOffendingType(t *testing.T) {
	err := NewException(UnknownInstruction, 99, "no such op")
	require.True(t, err.HasType)
	require.Equal(t, uint32(99), err.Offending)
}

func TestCodeStringUnknownFallback(t *testing.T) {
	require.Equal(t, "UNKNOWN", Code(0).String())
}

func TestCodeStringCoversEveryDeclaredCode(t *testing.T) {
	codes := []Code{
		NoMem, InvalidPacket, InvalidParameter, IllegalInstruction, OpNotSupp,
		Authentication, ProtocolVersion, DeviceBusy, DriverError,
		ReadOnlyParameter, ConnRefused, UnknownInstruction,
	}
	for _, c := range codes {
		require.NotEqual(t, "UNKNOWN", c.String())
	}
}

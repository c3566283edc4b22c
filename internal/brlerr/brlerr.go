// Package brlerr defines the wire-visible error vocabulary shared by every
// packet handler in the server core.
package brlerr

import "fmt"

// Code is the u32 error code carried in an ERROR or EXCEPTION packet.
type Code uint32

// Error codes referenced by the server's packet handlers (spec §6).
const (
	NoMem Code = iota + 1
	InvalidPacket
	InvalidParameter
	IllegalInstruction
	OpNotSupp
	Authentication
	ProtocolVersion
	DeviceBusy
	DriverError
	ReadOnlyParameter
	ConnRefused
	UnknownInstruction
)

func (c Code) String() string {
	switch c {
	case NoMem:
		return "NOMEM"
	case InvalidPacket:
		return "INVALID_PACKET"
	case InvalidParameter:
		return "INVALID_PARAMETER"
	case IllegalInstruction:
		return "ILLEGAL_INSTRUCTION"
	case OpNotSupp:
		return "OPNOTSUPP"
	case Authentication:
		return "AUTHENTICATION"
	case ProtocolVersion:
		return "PROTOCOL_VERSION"
	case DeviceBusy:
		return "DEVICEBUSY"
	case DriverError:
		return "DRIVERERROR"
	case ReadOnlyParameter:
		return "READONLY_PARAMETER"
	case ConnRefused:
		return "CONNREFUSED"
	case UnknownInstruction:
		return "UNKNOWN_INSTRUCTION"
	default:
		return "UNKNOWN"
	}
}

// WireError is a server-side failure that must surface to the peer as an
// ERROR (or, when Offending is set, an EXCEPTION) packet rather than
// tearing down the connection.
type WireError struct {
	Code      Code
	Reason    string
	Offending uint32 // offending packet type, set only for EXCEPTION replies
	HasType   bool
}

func (e *WireError) Error() string {
	if e.Reason == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// New builds a plain ERROR-shaped failure.
func New(code Code, reason string) *WireError {
	return &WireError{Code: code, Reason: reason}
}

// NewException builds an EXCEPTION-shaped failure referencing the packet
// type that triggered it.
func NewException(code Code, offendingType uint32, reason string) *WireError {
	return &WireError{Code: code, Reason: reason, Offending: offendingType, HasType: true}
}

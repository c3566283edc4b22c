package wire

// KeyCode is the u64 wire encoding of a key or command event: type,
// command code, flags, driver group and driver number packed into
// defined bit-fields (spec §3, "Key-range list", and §6's key-code wire
// form).
type KeyCode uint64

const (
	keyPressBit = uint64(1) << 63

	typeShift  = 32
	typeMask   = uint64(0xFF) << typeShift
	flagsShift = 24
	flagsMask  = uint64(0xFF) << flagsShift
	groupShift = 8
	groupMask  = uint64(0xFF) << groupShift
	numberMask = uint64(0xFF)
)

// KeyType distinguishes a semantic command from a raw driver key-code.
type KeyType uint8

const (
	KeyTypeCommand KeyType = iota
	KeyTypeDriver
)

// Fields is the decomposed form of a KeyCode.
type Fields struct {
	Press  bool
	Type   KeyType
	Flags  uint8
	Group  uint8
	Number uint8
	// Command carries the full 24-bit command code when Type is
	// KeyTypeCommand; driver-number fields are unused in that case.
	Command uint32
}

// Pack builds a wire KeyCode from its fields.
func Pack(f Fields) KeyCode {
	var v uint64
	if f.Press {
		v |= keyPressBit
	}
	v |= (uint64(f.Type) << typeShift) & typeMask
	v |= (uint64(f.Flags) << flagsShift) & flagsMask
	if f.Type == KeyTypeDriver {
		v |= (uint64(f.Group) << groupShift) & groupMask
		v |= uint64(f.Number) & numberMask
	} else {
		v |= uint64(f.Command) & 0x00FFFFFF
	}
	return KeyCode(v)
}

// Unpack decomposes a wire KeyCode into its fields.
func Unpack(k KeyCode) Fields {
	v := uint64(k)
	f := Fields{
		Press: v&keyPressBit != 0,
		Type:  KeyType((v & typeMask) >> typeShift),
		Flags: uint8((v & flagsMask) >> flagsShift),
	}
	if f.Type == KeyTypeDriver {
		f.Group = uint8((v & groupMask) >> groupShift)
		f.Number = uint8(v & numberMask)
	} else {
		f.Command = uint32(v & 0x00FFFFFF)
	}
	return f
}

// DriverForm returns the driver's own packed representation,
// (group<<8)|number|(press<<63), per spec §6.
func DriverForm(group, number uint8, press bool) uint64 {
	v := uint64(group)<<groupShift | uint64(number)
	if press {
		v |= keyPressBit
	}
	return v
}

// FromDriverForm converts a driver-reported key-number into a wire
// KeyCode tagged as KeyTypeDriver (used by C11 when the true driver
// reports a raw key event that must be relayed to a driver-key-codes
// client).
func FromDriverForm(group, number uint8, press bool) KeyCode {
	return Pack(Fields{Press: press, Type: KeyTypeDriver, Group: group, Number: number})
}

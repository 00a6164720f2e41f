package lorawan

import "fmt"

// MType represents the message type, carried in bits 7:5 of the MHDR.
type MType byte

// Supported message types (MType).
const (
	JoinRequest MType = iota
	JoinAccept
	UnconfirmedDataUp
	UnconfirmedDataDown
	ConfirmedDataUp
	ConfirmedDataDown
	RFU
	Proprietary
)

func (m MType) String() string {
	switch m {
	case JoinRequest:
		return "JoinRequest"
	case JoinAccept:
		return "JoinAccept"
	case UnconfirmedDataUp:
		return "UnconfirmedDataUp"
	case UnconfirmedDataDown:
		return "UnconfirmedDataDown"
	case ConfirmedDataUp:
		return "ConfirmedDataUp"
	case ConfirmedDataDown:
		return "ConfirmedDataDown"
	case RFU:
		return "RFU"
	case Proprietary:
		return "Proprietary"
	default:
		return "Unknown"
	}
}

// Major defines the major version of the message. This implementation
// only supports LoRaWAN R1.
type Major byte

// Supported major versions.
const (
	LoRaWANR1 Major = 0
)

// Direction indicates whether a PHYPayload travels from the device to
// the network (Up) or from the network to the device (Down).
type Direction byte

const (
	// Up is used by join-requests and the *Up MTypes.
	Up Direction = iota
	// Down is used by join-accepts and the *Down MTypes.
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Direction returns the direction implied by the message type:
// JoinRequest and the *Up MTypes are Up, JoinAccept and the *Down MTypes
// are Down. RFU and Proprietary default to Up.
func (m MType) Direction() Direction {
	switch m {
	case JoinAccept, UnconfirmedDataDown, ConfirmedDataDown:
		return Down
	default:
		return Up
	}
}

// MHDR represents the MAC header: MType (bits 7:5), three RFU bits
// (4:2, must be zero) and Major (bits 1:0).
type MHDR struct {
	MType MType
	Major Major
}

// NewMHDR returns a MHDR for the given type and major version.
func NewMHDR(mtype MType, major Major) MHDR {
	return MHDR{MType: mtype, Major: major}
}

// MarshalBinary encodes the header into its single wire octet.
func (h MHDR) MarshalBinary() ([]byte, error) {
	if h.MType > Proprietary {
		return nil, fmt.Errorf("lorawan: invalid MType %d", h.MType)
	}
	if h.Major != LoRaWANR1 {
		return nil, fmt.Errorf("lorawan: unsupported Major version %d", h.Major)
	}
	return []byte{byte(h.MType)<<5 | byte(h.Major)}, nil
}

// UnmarshalBinary decodes the header from its single wire octet. It
// returns MalformedPacket when the RFU bits (4:2) are non-zero, the
// MType exceeds the 3-bit range, or Major is not LoRaWANR1.
func (h *MHDR) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("%w: MHDR is exactly 1 byte", ErrMalformedPacket)
	}
	b := data[0]
	if b&0x1C != 0 {
		return fmt.Errorf("%w: RFU bits of MHDR must be zero", ErrMalformedPacket)
	}
	major := Major(b & 0x03)
	if major != LoRaWANR1 {
		return fmt.Errorf("%w: unsupported Major version %d", ErrMalformedPacket, major)
	}
	h.MType = MType(b >> 5)
	h.Major = major
	return nil
}

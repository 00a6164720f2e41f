package lorawan

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// AES128Key is a 128 bit AES key (AppKey, NwkSKey or AppSKey). It has no
// endianness: the 16 octets are used exactly as given, both on the wire
// and in key-derivation inputs.
type AES128Key [16]byte

// String returns the key as a hex string.
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (k AES128Key) MarshalBinary() ([]byte, error) {
	b := make([]byte, 16)
	copy(b, k[:])
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (k *AES128Key) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return fmt.Errorf("lorawan: an AES128Key is exactly 16 bytes, got %d", len(data))
	}
	copy(k[:], data)
	return nil
}

// EUI64 is a globally unique 8 byte identifier (DevEUI or AppEUI). The
// in-memory representation is logical big-endian (EUI64{0x70, ...} reads
// the same way the manufacturer prints it); MarshalBinary/UnmarshalBinary
// reverse the byte order to match the little-endian wire encoding.
type EUI64 [8]byte

// String returns the EUI in big-endian hex.
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalBinary implements encoding.BinaryMarshaler, reversing to the
// little-endian wire order.
func (e EUI64) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	for i := range e {
		b[len(e)-1-i] = e[i]
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, reversing the
// little-endian wire bytes back into logical big-endian order.
func (e *EUI64) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("lorawan: an EUI64 is exactly 8 bytes, got %d", len(data))
	}
	for i := range data {
		e[len(data)-1-i] = data[i]
	}
	return nil
}

// DevAddr is the 4 byte device address. The in-memory representation is
// logical big-endian; MarshalBinary/UnmarshalBinary reverse the byte
// order to match the little-endian wire encoding.
type DevAddr [4]byte

// String returns the DevAddr in big-endian hex.
func (a DevAddr) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalBinary implements encoding.BinaryMarshaler, reversing to the
// little-endian wire order.
func (a DevAddr) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	for i := range a {
		b[len(a)-1-i] = a[i]
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, reversing the
// little-endian wire bytes back into logical big-endian order.
func (a *DevAddr) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("lorawan: a DevAddr is exactly 4 bytes, got %d", len(data))
	}
	for i := range data {
		a[len(data)-1-i] = data[i]
	}
	return nil
}

// DevNonce is the 2 byte random nonce sent in a join-request. It carries
// no logical/wire distinction beyond the little-endian integer encoding.
type DevNonce uint16

// MarshalBinary implements encoding.BinaryMarshaler.
func (n DevNonce) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(n))
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (n *DevNonce) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return fmt.Errorf("lorawan: a DevNonce is exactly 2 bytes, got %d", len(data))
	}
	*n = DevNonce(binary.LittleEndian.Uint16(data))
	return nil
}

// AppNonce is the 3 byte nonce a join-accept carries. It is read and
// used directly from the decrypted join-accept plaintext, with no
// further byte reversal.
type AppNonce [3]byte

// NetID is the 3 byte network identifier carried in a join-accept.
type NetID [3]byte

// String returns the NetID as hex.
func (n NetID) String() string {
	return hex.EncodeToString(n[:])
}

// MIC is the 4 byte message integrity code: the first 4 bytes of an
// AES-CMAC computation.
type MIC [4]byte

// String returns the MIC as hex.
func (m MIC) String() string {
	return hex.EncodeToString(m[:])
}

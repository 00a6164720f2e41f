package lorawan

import "fmt"

// MACPayload is the data up/downlink MACPayload: FHDR | FPort(0|1) |
// FRMPayload. FPort 0 means FRMPayload, if present, carries MAC commands
// encrypted under NwkSKey instead of application data; that distinction
// is left to the caller, since MAC command parsing is out of scope here.
type MACPayload struct {
	FHDR FHDR

	// FPort is nil when no payload follows the FHDR.
	FPort *uint8

	// FRMPayload holds the wire bytes exactly as transmitted: encrypted
	// when populated from the radio, plaintext once the caller has run
	// it through PHYPayload's FRMPayload encrypt/decrypt helper.
	FRMPayload []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p MACPayload) MarshalBinary() ([]byte, error) {
	fhdr, err := p.FHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(fhdr)+1+len(p.FRMPayload))
	out = append(out, fhdr...)

	if p.FPort != nil {
		out = append(out, *p.FPort)
		out = append(out, p.FRMPayload...)
	} else if len(p.FRMPayload) != 0 {
		return nil, fmt.Errorf("lorawan: FRMPayload is set but FPort is nil")
	}

	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *MACPayload) UnmarshalBinary(data []byte) error {
	if err := p.FHDR.UnmarshalBinary(data); err != nil {
		return err
	}

	rest := data[p.FHDR.Len():]
	if len(rest) == 0 {
		p.FPort = nil
		p.FRMPayload = nil
		return nil
	}

	fPort := rest[0]
	p.FPort = &fPort
	p.FRMPayload = make([]byte, len(rest)-1)
	copy(p.FRMPayload, rest[1:])
	return nil
}

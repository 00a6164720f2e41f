// Package session holds the per-device activation state a Class A end
// device needs between transmissions: its DevAddr, the two session keys,
// and the uplink/downlink frame counters.
package session

import (
	"github.com/pkg/errors"

	"github.com/draginohat/lorawan-endpoint/lorawan"
)

// ActivationMode records whether a Session came from a pre-provisioned
// ABP configuration or an OTAA join.
type ActivationMode int

const (
	// ActivationNone is the zero value: no session has been established.
	ActivationNone ActivationMode = iota
	ActivationABP
	ActivationOTAA
)

func (m ActivationMode) String() string {
	switch m {
	case ActivationABP:
		return "ABP"
	case ActivationOTAA:
		return "OTAA"
	default:
		return "none"
	}
}

// Session is the mutable activation state of a single device. FCntUp is
// the counter to use on the *next* uplink; FCntDown is the last downlink
// FCnt accepted.
type Session struct {
	Mode ActivationMode

	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key

	FCntUp   uint32
	FCntDown uint32

	// seenDown distinguishes "no downlink accepted yet" from "the last
	// accepted downlink had FCnt 0", since both otherwise leave FCntDown
	// at its zero value.
	seenDown bool
}

// NewABPSession builds a Session from pre-provisioned ABP credentials.
// FCntUp starts at 1, matching the device's initial frame counter file.
func NewABPSession(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key) *Session {
	return &Session{
		Mode:    ActivationABP,
		DevAddr: devAddr,
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
		FCntUp:  1,
	}
}

// NewOTAASession builds a Session from the DevAddr and derived session
// keys recovered out of a validated JoinAccept. FCntUp is reset to 1, the
// frame counter a fresh join always restarts from.
func NewOTAASession(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key) *Session {
	return &Session{
		Mode:    ActivationOTAA,
		DevAddr: devAddr,
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
		FCntUp:  1,
	}
}

// Activated reports whether the session carries usable keys.
func (s *Session) Activated() bool {
	return s != nil && s.Mode != ActivationNone
}

// NextFCntUp returns the frame counter to use for the next uplink and
// increments FCntUp, regardless of whether the caller's transmit
// ultimately succeeds — a retried send must never reuse a counter value.
func (s *Session) NextFCntUp() (uint32, error) {
	if !s.Activated() {
		return 0, ErrNotActivated
	}
	fCnt := s.FCntUp
	s.FCntUp++
	return fCnt, nil
}

// ValidateAndSetFCntDown checks a downlink frame counter against the last
// accepted value, rejecting any replay or out-of-order delivery, and
// advances FCntDown on success. It does not validate the MIC; callers
// must do that first.
func (s *Session) ValidateAndSetFCntDown(fCnt uint32) error {
	if !s.Activated() {
		return ErrNotActivated
	}
	if s.seenDown && fCnt <= s.FCntDown {
		return errors.Wrapf(ErrFCntDownReplay, "got %d, want > %d", fCnt, s.FCntDown)
	}
	s.FCntDown = fCnt
	s.seenDown = true
	return nil
}

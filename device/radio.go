package device

import (
	"context"
	"time"
)

// RadioMode names the SX127x operating modes set before and after every
// transmit/receive transition. The constants are not the MODE register
// encodings; mapping them to register values is up to the Radio
// implementation.
type RadioMode int

const (
	ModeSleep RadioMode = iota
	ModeStandby
	ModeTX
	ModeRXContinuous
)

// DioMapping is the SX127x DIO0..DIO5 pin mapping. The device maps DIO0
// to TxDone while transmitting and back to RxDone for the receive
// windows.
type DioMapping [6]byte

var (
	// DioMappingTX routes DIO0 to the TxDone interrupt.
	DioMappingTX = DioMapping{1, 0, 0, 0, 0, 0}
	// DioMappingRX routes DIO0 to the RxDone interrupt.
	DioMappingRX = DioMapping{0, 0, 0, 0, 0, 0}
)

// Radio is the collaborator a Device drives over SPI/GPIO. It is
// implemented by the board-support layer; this package only ever calls
// it, never implements it. The SPI register and GPIO interrupt details
// stay behind this interface.
type Radio interface {
	// SetMode transitions the radio's operating mode.
	SetMode(mode RadioMode) error

	// SetFrequency tunes the radio to freqHz for the next transmit or
	// receive.
	SetFrequency(freqHz uint32) error

	// SetSpreadingFactor configures the LoRa spreading factor (7..12).
	SetSpreadingFactor(sf int) error

	// SetSyncWord configures the LoRa sync word; 0x34 for public
	// LoRaWAN networks.
	SetSyncWord(syncWord byte) error

	// SetPAConfig configures the power amplifier's max and output power
	// register fields.
	SetPAConfig(maxPower, outputPower byte) error

	// SetRxCRC enables or disables payload CRC validation on receive.
	SetRxCRC(enabled bool) error

	// SetInvertIQ toggles IQ inversion, required on the downlink path so
	// the end device can demodulate what the network transmitted.
	SetInvertIQ(invert bool) error

	// SetDioMapping routes the DIO pins to interrupt sources.
	SetDioMapping(mapping DioMapping) error

	// WritePayload hands a fully framed PHYPayload to the radio's TX
	// FIFO. It returns once the FIFO accepts the frame, not once it has
	// gone over the air.
	WritePayload(data []byte) error

	// ReadPayload returns the most recently received frame, or nil if
	// none is available. nocheck skips the radio's CRC error flag and
	// returns the payload regardless.
	ReadPayload(nocheck bool) ([]byte, error)

	// ClearIRQFlags acknowledges the TxDone/RxDone interrupt so the
	// radio can raise the next one.
	ClearIRQFlags() error

	// ResetPtrRX rewinds the RX FIFO read pointer ahead of re-entering
	// continuous receive.
	ResetPtrRX() error
}

// GPSFix is a decoded NMEA GGA position fix.
type GPSFix struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Satellites int
	Timestamp  time.Time
}

// GPSReceiver is the collaborator for the Dragino HAT's onboard GPS
// module. Implementations read and parse NMEA sentences off a serial
// port; that parsing is out of scope here, same as the radio's SPI bus.
type GPSReceiver interface {
	// ReadFix blocks until a GGA fix is available or ctx is done,
	// whichever comes first.
	ReadFix(ctx context.Context) (*GPSFix, error)
}

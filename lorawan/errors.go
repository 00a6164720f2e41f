package lorawan

import "errors"

// ErrMalformedPacket is returned (wrapped, via fmt.Errorf("%w: ...")) for
// every structural parse failure: short buffers, an invalid MType, a
// non-zero RFU bit, an FOpts length mismatch, and so on. It is never used
// to signal a MIC mismatch; the PHYPayload Validate*MIC methods report
// that as a boolean instead.
var ErrMalformedPacket = errors.New("lorawan: malformed packet")

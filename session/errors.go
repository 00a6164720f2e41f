package session

import "errors"

// ErrNotActivated is returned when an operation that requires session keys
// (NwkSKey/AppSKey/DevAddr) is attempted before ABP or OTAA activation.
var ErrNotActivated = errors.New("session: device not activated")

// ErrFCntDownReplay is returned by ValidateAndSetFCntDown when the
// supplied FCnt is not strictly greater than the last accepted downlink
// frame counter.
var ErrFCntDownReplay = errors.New("session: downlink frame counter replay detected")

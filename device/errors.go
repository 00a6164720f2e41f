package device

import "errors"

// ErrNotActivated is returned by SendBytes/Send when called before a
// successful Join (OTAA) or without ABP credentials.
var ErrNotActivated = errors.New("device: not activated, call Join first")

// ErrUnsupportedAuthMode is returned by Load and New when auth_mode is
// anything other than "ABP" or "OTAA".
var ErrUnsupportedAuthMode = errors.New("device: unsupported auth mode")

// ErrGPSTimeout is returned by Device.GetGPS when no fix arrives within
// the configured wait period.
var ErrGPSTimeout = errors.New("device: timed out waiting for GPS fix")

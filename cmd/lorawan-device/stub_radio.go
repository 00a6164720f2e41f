package main

import (
	"github.com/sirupsen/logrus"

	"github.com/draginohat/lorawan-endpoint/device"
)

// stubRadio is a placeholder device.Radio: it logs every call instead of
// driving real SX127x SPI registers. Production deployments wire a real
// board-support implementation in its place when constructing the Device.
type stubRadio struct {
	log *logrus.Logger
}

func newStubRadio(log *logrus.Logger) *stubRadio {
	return &stubRadio{log: log}
}

func (r *stubRadio) SetMode(mode device.RadioMode) error {
	r.log.WithField("mode", mode).Debug("stub radio: set mode")
	return nil
}

func (r *stubRadio) SetFrequency(freqHz uint32) error {
	r.log.WithField("freq_hz", freqHz).Debug("stub radio: set frequency")
	return nil
}

func (r *stubRadio) SetSpreadingFactor(sf int) error {
	r.log.WithField("sf", sf).Debug("stub radio: set spreading factor")
	return nil
}

func (r *stubRadio) SetSyncWord(syncWord byte) error {
	r.log.WithField("sync_word", syncWord).Debug("stub radio: set sync word")
	return nil
}

func (r *stubRadio) SetPAConfig(maxPower, outputPower byte) error {
	r.log.WithFields(logrus.Fields{
		"max_power":    maxPower,
		"output_power": outputPower,
	}).Debug("stub radio: set PA config")
	return nil
}

func (r *stubRadio) SetRxCRC(enabled bool) error {
	r.log.WithField("enabled", enabled).Debug("stub radio: set rx crc")
	return nil
}

func (r *stubRadio) SetInvertIQ(invert bool) error {
	r.log.WithField("invert", invert).Debug("stub radio: set invert IQ")
	return nil
}

func (r *stubRadio) SetDioMapping(mapping device.DioMapping) error {
	r.log.WithField("mapping", mapping).Debug("stub radio: set DIO mapping")
	return nil
}

func (r *stubRadio) WritePayload(data []byte) error {
	r.log.WithField("bytes", len(data)).Debug("stub radio: write payload")
	return nil
}

func (r *stubRadio) ReadPayload(nocheck bool) ([]byte, error) {
	return nil, nil
}

func (r *stubRadio) ClearIRQFlags() error {
	return nil
}

func (r *stubRadio) ResetPtrRX() error {
	return nil
}

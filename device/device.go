package device

import (
	"context"
	"io"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/draginohat/lorawan-endpoint/lorawan"
	"github.com/draginohat/lorawan-endpoint/lorawan/gpstime"
	"github.com/draginohat/lorawan-endpoint/session"
)

// DefaultRetries is how many transmit attempts SendBytes makes before
// giving up.
const DefaultRetries = 3

// State is the Class A transmit/receive state a Device occupies.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateTransmitting
	StateRXListen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateTransmitting:
		return "transmitting"
	case StateRXListen:
		return "rx_listen"
	default:
		return "unknown"
	}
}

// DownlinkCallback receives a decoded downlink's FRMPayload bytes and its
// MType (UnconfirmedDataDown or ConfirmedDataDown), invoked only after
// the frame's MIC has validated.
type DownlinkCallback func(payload []byte, mtype lorawan.MType)

// Device drives a single Class A end device through OTAA/ABP activation
// and the transmit/receive cycle: Join, SendBytes, the TxDone/RxDone
// event callbacks, and downlink dispatch.
type Device struct {
	cfg       *Config
	radio     Radio
	gps       GPSReceiver
	channels  ChannelPlan
	fcntStore session.FCntStore
	log       *logrus.Logger
	retries   int

	state   State
	sess    *session.Session
	lastFix *GPSFix

	devEUI   lorawan.EUI64
	appEUI   lorawan.EUI64
	appKey   lorawan.AES128Key
	devNonce lorawan.DevNonce

	downlinkCallback DownlinkCallback
}

// New builds a Device from its parsed config and collaborators. retries
// of 0 selects DefaultRetries. log may be nil, in which case log output
// is discarded.
func New(cfg *Config, radio Radio, gps GPSReceiver, plan ChannelPlan, retries int, log *logrus.Logger) (*Device, error) {
	if radio == nil {
		return nil, errors.New("device: radio collaborator must not be nil")
	}
	if log == nil {
		log = &logrus.Logger{
			Out:       io.Discard,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		}
	}
	if retries <= 0 {
		retries = DefaultRetries
	}

	maxPower, err := cfg.MaxPower()
	if err != nil {
		return nil, err
	}
	outputPower, err := cfg.OutputPower()
	if err != nil {
		return nil, err
	}
	syncWord, err := cfg.SyncWord()
	if err != nil {
		return nil, err
	}
	if err := configureRadio(radio, cfg.SpreadingFactor, maxPower, outputPower, syncWord, cfg.RxCRC); err != nil {
		return nil, errors.Wrap(err, "device: configuring radio")
	}

	fcntStore := session.NewFileFCntStore(cfg.FCountFilename)
	fCntUp, err := fcntStore.Load()
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:       cfg,
		radio:     radio,
		gps:       gps,
		channels:  plan,
		fcntStore: fcntStore,
		log:       log,
		retries:   retries,
		sess:      &session.Session{},
	}

	switch cfg.AuthMode {
	case AuthABP:
		devAddr, nwkSKey, appSKey, err := cfg.ABPSession()
		if err != nil {
			return nil, err
		}
		d.sess = session.NewABPSession(devAddr, nwkSKey, appSKey)
		d.sess.FCntUp = fCntUp
		d.state = StateJoined
		log.Info("device: using ABP, no join necessary")

	case AuthOTAA:
		devEUI, appEUI, appKey, err := cfg.OTAAIdentity()
		if err != nil {
			return nil, err
		}
		d.devEUI, d.appEUI, d.appKey = devEUI, appEUI, appKey

		if cfg.Cached() {
			devAddr, nwkSKey, appSKey, fCount, err := cfg.CachedSession()
			if err != nil {
				return nil, err
			}
			d.sess = session.NewOTAASession(devAddr, nwkSKey, appSKey)
			d.sess.FCntUp = fCount
			d.state = StateJoined
			log.Info("device: using cached OTAA session")
		} else {
			d.state = StateIdle
		}

	default:
		return nil, errors.Wrapf(ErrUnsupportedAuthMode, "got %q", cfg.AuthMode)
	}

	return d, nil
}

// configureRadio applies the one-time register settings from the config
// file. The radio must pass through sleep before the registers accept
// writes, and the DIO mapping defaults to the transmit layout.
func configureRadio(radio Radio, spreadingFactor int, maxPower, outputPower, syncWord byte, rxCRC bool) error {
	if err := radio.SetMode(ModeSleep); err != nil {
		return err
	}
	if err := radio.SetDioMapping(DioMappingTX); err != nil {
		return err
	}
	if err := radio.SetSpreadingFactor(spreadingFactor); err != nil {
		return err
	}
	if err := radio.SetPAConfig(maxPower, outputPower); err != nil {
		return err
	}
	if err := radio.SetSyncWord(syncWord); err != nil {
		return err
	}
	return radio.SetRxCRC(rxCRC)
}

// transmit tunes the radio to freq and hands b to its TX FIFO, returning
// once the FIFO has accepted the frame: it does not wait for the frame
// to go over the air. OnTxDone observes that completion.
func (d *Device) transmit(freq uint32, b []byte) error {
	if err := d.radio.SetMode(ModeSleep); err != nil {
		return err
	}
	if err := d.radio.SetFrequency(freq); err != nil {
		return err
	}
	if err := d.radio.WritePayload(b); err != nil {
		return err
	}
	if err := d.radio.SetDioMapping(DioMappingTX); err != nil {
		return err
	}
	return d.radio.SetMode(ModeTX)
}

// Registered reports whether the device holds an activated session,
// either via ABP or a completed OTAA join.
func (d *Device) Registered() bool {
	return d.sess.Activated()
}

// Transmitting reports whether a frame handed to the radio is still
// going over the air; it flips back to false when OnTxDone runs.
func (d *Device) Transmitting() bool {
	return d.state == StateTransmitting
}

// SetDownlinkCallback installs the function invoked for validated
// downlink data frames. Pass nil to stop receiving callbacks.
func (d *Device) SetDownlinkCallback(cb DownlinkCallback) {
	d.log.WithField("set", cb != nil).Info("device: downlink callback configured")
	d.downlinkCallback = cb
}

// Join performs the OTAA join handshake: it is a no-op under ABP, and a
// no-op if a cached session was already loaded at construction. It
// returns once the join-request has been handed to the radio; the
// device only becomes Joined once OnRxDone processes the JoinAccept.
func (d *Device) Join() error {
	if d.cfg.AuthMode == AuthABP {
		d.log.Info("device: using ABP, no need to join")
		return nil
	}
	if d.sess.Activated() {
		d.log.Info("device: already joined from cached session")
		return nil
	}

	d.devNonce = lorawan.DevNonce(uint16(rand.Intn(1 << 16)))
	d.log.WithField("dev_nonce", d.devNonce).Debug("device: performing OTAA join")

	phy := lorawan.PHYPayload{
		MHDR: lorawan.NewMHDR(lorawan.JoinRequest, lorawan.LoRaWANR1),
		MACPayload: &lorawan.JoinRequestPayload{
			AppEUI:   d.appEUI,
			DevEUI:   d.devEUI,
			DevNonce: d.devNonce,
		},
	}
	if err := phy.SetUplinkJoinMIC(d.appKey); err != nil {
		return err
	}

	b, err := phy.MarshalBinary()
	if err != nil {
		return err
	}

	freq := d.channels.Choose(true)
	if err := d.transmit(freq, b); err != nil {
		return errors.Wrap(err, "device: transmitting join-request")
	}

	d.state = StateJoining
	d.log.WithField("freq", freq).Info("device: join-request sent")
	return nil
}

// SendBytes transmits message over the LoRaWAN channel as an
// UnconfirmedDataUp frame on FPort 1. It retries up to the configured
// retry count; every attempt re-selects a channel and increments FCntUp
// regardless of whether the attempt succeeds, so a retried send never
// reuses a frame counter value. Malformed-packet errors from the codec
// and radio errors are retried; invalid-argument errors fail fast.
func (d *Device) SendBytes(message []byte) error {
	if !d.sess.Activated() {
		return ErrNotActivated
	}

	var lastErr error
	for attempt := 1; attempt <= d.retries; attempt++ {
		freq := d.channels.Choose(false)

		fCnt, err := d.sess.NextFCntUp()
		if err != nil {
			return err
		}

		b, err := d.buildDataUp(fCnt, message)
		if err != nil {
			if !errors.Is(err, lorawan.ErrMalformedPacket) {
				return err
			}
			d.log.WithError(err).Warn("device: frame build failed, retrying")
			lastErr = err
			continue
		}

		d.log.WithFields(logrus.Fields{"attempt": attempt, "fcnt": fCnt, "freq": freq}).Debug("device: sending frame")

		if err := d.transmit(freq, b); err != nil {
			d.log.WithError(err).Warn("device: transmit attempt failed, retrying")
			lastErr = err
			continue
		}

		d.state = StateTransmitting
		if err := d.fcntStore.Save(d.sess.FCntUp); err != nil {
			d.log.WithError(err).Warn("device: failed to persist frame counter")
		}
		d.log.WithFields(logrus.Fields{"attempt": attempt, "of": d.retries}).Info("device: send succeeded")
		return nil
	}

	return errors.Wrapf(lastErr, "device: send failed after %d attempts", d.retries)
}

// buildDataUp assembles, encrypts and MICs an UnconfirmedDataUp frame
// carrying message on FPort 1.
func (d *Device) buildDataUp(fCnt uint32, message []byte) ([]byte, error) {
	fPort := uint8(1)
	phy := lorawan.PHYPayload{
		MHDR: lorawan.NewMHDR(lorawan.UnconfirmedDataUp, lorawan.LoRaWANR1),
		MACPayload: &lorawan.MACPayload{
			FHDR:       lorawan.FHDR{DevAddr: d.sess.DevAddr, FCnt: uint16(fCnt)},
			FPort:      &fPort,
			FRMPayload: append([]byte{}, message...),
		},
	}

	if err := phy.EncryptFRMPayload(d.sess.AppSKey); err != nil {
		return nil, err
	}
	if err := phy.SetUplinkDataMIC(d.sess.NwkSKey, fCnt); err != nil {
		return nil, err
	}
	return phy.MarshalBinary()
}

// Send transmits a string message, encoding it as its raw bytes.
func (d *Device) Send(message string) error {
	return d.SendBytes([]byte(message))
}

// OnTxDone is the callback a Radio implementation invokes when its
// TxDone interrupt fires. It returns the radio to continuous receive
// with IQ inverted, the configuration a Class A device listens with.
func (d *Device) OnTxDone() error {
	d.log.Debug("device: tx complete")

	if err := d.radio.ClearIRQFlags(); err != nil {
		return err
	}
	if err := d.radio.SetMode(ModeStandby); err != nil {
		return err
	}
	if err := d.radio.SetDioMapping(DioMappingRX); err != nil {
		return err
	}
	if err := d.radio.SetInvertIQ(true); err != nil {
		return err
	}
	if err := d.radio.ResetPtrRX(); err != nil {
		return err
	}
	if err := d.radio.SetMode(ModeRXContinuous); err != nil {
		return err
	}

	if d.state == StateJoining || d.state == StateTransmitting {
		d.state = StateRXListen
	}
	return nil
}

// OnRxDone is the callback a Radio implementation invokes when its
// RxDone interrupt fires. It decodes the received frame, and dispatches
// it as a join-accept or a downlink data frame depending on MHDR.MType.
// Malformed frames and MIC failures are logged, never returned as
// errors: a garbage frame off the air must not kill the event loop.
func (d *Device) OnRxDone() error {
	if err := d.radio.ClearIRQFlags(); err != nil {
		return err
	}

	payload, err := d.radio.ReadPayload(true)
	if err != nil {
		return err
	}
	if payload == nil {
		d.log.Debug("device: rx done with no payload")
		return nil
	}

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(payload); err != nil {
		d.log.WithError(err).Warn("device: malformed downlink packet")
		return nil
	}

	switch phy.MHDR.MType {
	case lorawan.JoinAccept:
		return d.handleJoinAccept(&phy)
	case lorawan.UnconfirmedDataDown, lorawan.ConfirmedDataDown:
		return d.handleDataDown(&phy)
	default:
		d.log.WithField("mtype", phy.MHDR.MType).Debug("device: unexpected downlink mtype")
		return nil
	}
}

func (d *Device) handleJoinAccept(phy *lorawan.PHYPayload) error {
	if d.state != StateJoining && d.state != StateRXListen {
		d.log.Debug("device: ignoring unsolicited join-accept")
		return nil
	}

	if err := phy.DecryptJoinAcceptPayload(d.appKey); err != nil {
		d.log.WithError(err).Warn("device: failed to decrypt join-accept")
		return nil
	}

	valid, err := phy.ValidateDownlinkJoinMIC(d.appKey)
	if err != nil {
		return err
	}
	if !valid {
		d.log.Warn("device: join-accept MIC invalid, discarding")
		return nil
	}

	ja, ok := phy.MACPayload.(*lorawan.JoinAcceptPayload)
	if !ok {
		d.log.Warn("device: join-accept payload had the wrong type after decrypt")
		return nil
	}

	nwkSKey, err := ja.DeriveNwkSKey(d.appKey, d.devNonce)
	if err != nil {
		return err
	}
	appSKey, err := ja.DeriveAppSKey(d.appKey, d.devNonce)
	if err != nil {
		return err
	}

	d.sess = session.NewOTAASession(ja.DevAddr, nwkSKey, appSKey)
	d.state = StateJoined

	fields := logrus.Fields{"dev_addr": ja.DevAddr}
	if d.lastFix != nil {
		fields["gps_time_since_epoch"] = gpstime.Time(d.lastFix.Timestamp).TimeSinceGPSEpoch()
	}
	d.log.WithFields(fields).Info("device: joined")

	if err := d.fcntStore.Save(d.sess.FCntUp); err != nil {
		d.log.WithError(err).Warn("device: failed to persist frame counter after join")
	}
	if err := d.cfg.SaveSession(ja.DevAddr, nwkSKey, appSKey, d.sess.FCntUp); err != nil {
		d.log.WithError(err).Warn("device: failed to persist cached session after join")
	}
	return nil
}

func (d *Device) handleDataDown(phy *lorawan.PHYPayload) error {
	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		d.log.Warn("device: downlink payload had the wrong type")
		return nil
	}

	fCnt := uint32(macPL.FHDR.FCnt)
	valid, err := phy.ValidateDownlinkDataMIC(d.sess.NwkSKey, fCnt)
	if err != nil {
		return err
	}
	if !valid {
		d.log.Warn("device: downlink MIC invalid, discarding")
		d.state = StateJoined
		return nil
	}

	if err := d.sess.ValidateAndSetFCntDown(fCnt); err != nil {
		d.log.WithError(err).Warn("device: downlink rejected")
		d.state = StateJoined
		return nil
	}

	frmKey := d.sess.AppSKey
	if macPL.FPort != nil && *macPL.FPort == 0 {
		frmKey = d.sess.NwkSKey
	}
	if err := phy.DecryptFRMPayload(frmKey); err != nil {
		return err
	}
	d.state = StateJoined

	if d.downlinkCallback != nil {
		d.downlinkCallback(macPL.FRMPayload, phy.MHDR.MType)
	}
	return nil
}

// GetGPS waits for a GPS fix, giving up after the config file's
// gps_wait_period seconds have elapsed.
func (d *Device) GetGPS(ctx context.Context) (*GPSFix, error) {
	if d.gps == nil {
		return nil, errors.New("device: no GPS receiver configured")
	}

	timeout := time.Duration(d.cfg.GPSWaitPeriod) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := d.gps.ReadFix(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrGPSTimeout
		}
		return nil, err
	}

	d.lastFix = fix
	d.log.WithFields(logrus.Fields{
		"lat":                  fix.Latitude,
		"lon":                  fix.Longitude,
		"gps_time_since_epoch": gpstime.Time(fix.Timestamp).TimeSinceGPSEpoch(),
	}).Info("device: GPS fix acquired")
	return fix, nil
}

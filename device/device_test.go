package device

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draginohat/lorawan-endpoint/lorawan"
)

// fakeRadio is an in-memory Radio double: WritePayload appends to tx,
// and ReadPayload pops the next frame queued in rx.
type fakeRadio struct {
	tx  [][]byte
	rx  [][]byte
	cfg struct {
		spreadingFactor                 int
		maxPower, outputPower, syncWord byte
		rxCRC                           bool
	}
	lastFreq   uint32
	mode       RadioMode
	dioMapping DioMapping
	invertIQ   bool
}

func (r *fakeRadio) SetMode(mode RadioMode) error {
	r.mode = mode
	return nil
}

func (r *fakeRadio) SetFrequency(freqHz uint32) error {
	r.lastFreq = freqHz
	return nil
}

func (r *fakeRadio) SetSpreadingFactor(sf int) error {
	r.cfg.spreadingFactor = sf
	return nil
}

func (r *fakeRadio) SetSyncWord(syncWord byte) error {
	r.cfg.syncWord = syncWord
	return nil
}

func (r *fakeRadio) SetPAConfig(maxPower, outputPower byte) error {
	r.cfg.maxPower = maxPower
	r.cfg.outputPower = outputPower
	return nil
}

func (r *fakeRadio) SetRxCRC(enabled bool) error {
	r.cfg.rxCRC = enabled
	return nil
}

func (r *fakeRadio) SetInvertIQ(invert bool) error {
	r.invertIQ = invert
	return nil
}

func (r *fakeRadio) SetDioMapping(mapping DioMapping) error {
	r.dioMapping = mapping
	return nil
}

func (r *fakeRadio) WritePayload(data []byte) error {
	r.tx = append(r.tx, data)
	return nil
}

func (r *fakeRadio) ReadPayload(nocheck bool) ([]byte, error) {
	if len(r.rx) == 0 {
		return nil, nil
	}
	next := r.rx[0]
	r.rx = r.rx[1:]
	return next, nil
}

func (r *fakeRadio) ClearIRQFlags() error { return nil }
func (r *fakeRadio) ResetPtrRX() error    { return nil }

func (r *fakeRadio) queueRx(data []byte) { r.rx = append(r.rx, data) }
func (r *fakeRadio) lastTx() []byte      { return r.tx[len(r.tx)-1] }

type fakeGPS struct {
	fix *GPSFix
	err error
}

func (g *fakeGPS) ReadFix(ctx context.Context) (*GPSFix, error) {
	if g.fix != nil {
		return g.fix, g.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func abpConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		SpreadingFactor: 7,
		MaxPowerHex:     "0f",
		OutputPowerHex:  "0e",
		SyncWordHex:     "34",
		FCountFilename:  t.TempDir() + "/fcnt",
		AuthMode:        AuthABP,
		DevAddrHex:      "01020304",
		NwkSKeyHex:      "000102030405060708090a0b0c0d0e0f",
		AppSKeyHex:      "0f0e0d0c0b0a09080706050403020100",
	}
}

func otaaConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		SpreadingFactor: 7,
		MaxPowerHex:     "0f",
		OutputPowerHex:  "0e",
		SyncWordHex:     "34",
		FCountFilename:  t.TempDir() + "/fcnt",
		AuthMode:        AuthOTAA,
		DevEUIHex:       "0001020304050607",
		AppEUIHex:       "08090a0b0c0d0e0f",
		AppKeyHex:       "000102030405060708090a0b0c0d0e0f",
	}
}

func TestNewABPIsImmediatelyRegistered(t *testing.T) {
	radio := &fakeRadio{}
	d, err := New(abpConfig(t), radio, nil, EU868, 3, nil)
	require.NoError(t, err)
	assert.True(t, d.Registered())
	assert.Equal(t, StateJoined, d.state)
	assert.Equal(t, byte(0x0f), radio.cfg.maxPower)
}

func TestJoinIsNoOpUnderABP(t *testing.T) {
	radio := &fakeRadio{}
	d, err := New(abpConfig(t), radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	require.NoError(t, d.Join())
	assert.Empty(t, radio.tx)
	assert.Equal(t, StateJoined, d.state)
}

func TestNewOTAAWithoutCacheStartsIdle(t *testing.T) {
	d, err := New(otaaConfig(t), &fakeRadio{}, nil, EU868, 3, nil)
	require.NoError(t, err)
	assert.False(t, d.Registered())
	assert.Equal(t, StateIdle, d.state)
}

func TestNewOTAAWithCacheIsRegistered(t *testing.T) {
	cfg := otaaConfig(t)
	cfg.CachedDevAddrHex = "01020304"
	cfg.CachedNwkSKeyHex = "000102030405060708090a0b0c0d0e0f"
	cfg.CachedAppSKeyHex = "0f0e0d0c0b0a09080706050403020100"
	fc := uint32(42)
	cfg.CachedFCount = &fc

	d, err := New(cfg, &fakeRadio{}, nil, EU868, 3, nil)
	require.NoError(t, err)
	assert.True(t, d.Registered())
	assert.Equal(t, StateJoined, d.state)
	assert.Equal(t, uint32(42), d.sess.FCntUp)

	require.NoError(t, d.Join())
	assert.Empty(t, radioOf(d).tx)
}

func radioOf(d *Device) *fakeRadio { return d.radio.(*fakeRadio) }

func TestJoinSendsJoinRequestOnAJoinChannel(t *testing.T) {
	radio := &fakeRadio{}
	d, err := New(otaaConfig(t), radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	require.NoError(t, d.Join())
	require.Len(t, radio.tx, 1)
	assert.Equal(t, StateJoining, d.state)
	assert.Contains(t, EU868.Join, radio.lastFreq)

	var phy lorawan.PHYPayload
	require.NoError(t, phy.UnmarshalBinary(radio.lastTx()))
	assert.Equal(t, lorawan.JoinRequest, phy.MHDR.MType)
}

func TestOnTxDoneMovesToRXListen(t *testing.T) {
	radio := &fakeRadio{}
	d, err := New(otaaConfig(t), radio, nil, EU868, 3, nil)
	require.NoError(t, err)
	require.NoError(t, d.Join())

	require.NoError(t, d.OnTxDone())
	assert.Equal(t, StateRXListen, d.state)
	assert.Equal(t, ModeRXContinuous, radio.mode)
	assert.True(t, radio.invertIQ, "receive windows listen with IQ inverted")
	assert.Equal(t, DioMappingRX, radio.dioMapping)
}

// buildJoinAccept constructs a valid join-accept frame addressed to the
// given appKey/devNonce, the way a network server's response would look.
func buildJoinAccept(t *testing.T, appKey lorawan.AES128Key, devNonce lorawan.DevNonce) []byte {
	t.Helper()

	ja := &lorawan.JoinAcceptPayload{
		AppNonce: lorawan.AppNonce{1, 2, 3},
		NetID:    lorawan.NetID{4, 5, 6},
		DevAddr:  lorawan.DevAddr{9, 8, 7, 6},
	}
	phy := lorawan.PHYPayload{
		MHDR:       lorawan.NewMHDR(lorawan.JoinAccept, lorawan.LoRaWANR1),
		MACPayload: ja,
	}
	require.NoError(t, phy.SetDownlinkJoinMIC(appKey))
	require.NoError(t, phy.EncryptJoinAcceptPayload(appKey))

	b, err := phy.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestOnRxDoneProcessesJoinAccept(t *testing.T) {
	cfg := otaaConfig(t)
	radio := &fakeRadio{}
	d, err := New(cfg, radio, nil, EU868, 3, nil)
	require.NoError(t, err)
	require.NoError(t, d.Join())

	_, _, appKeyParsed, err := cfg.OTAAIdentity()
	require.NoError(t, err)

	radio.queueRx(buildJoinAccept(t, appKeyParsed, d.devNonce))
	require.NoError(t, d.OnRxDone())

	assert.True(t, d.Registered())
	assert.Equal(t, StateJoined, d.state)
	assert.Equal(t, lorawan.DevAddr{9, 8, 7, 6}, d.sess.DevAddr)
}

func TestSendBytesEncodesAndTransmits(t *testing.T) {
	radio := &fakeRadio{}
	d, err := New(abpConfig(t), radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	require.NoError(t, d.SendBytes([]byte("hello")))
	require.Len(t, radio.tx, 1)
	assert.Equal(t, StateTransmitting, d.state)
	assert.True(t, d.Transmitting())
	assert.Equal(t, ModeTX, radio.mode)
	assert.Equal(t, uint32(2), d.sess.FCntUp)

	require.NoError(t, d.OnTxDone())
	assert.False(t, d.Transmitting(), "OnTxDone marks the transmit complete")

	var phy lorawan.PHYPayload
	require.NoError(t, phy.UnmarshalBinary(radio.lastTx()))
	assert.Equal(t, lorawan.UnconfirmedDataUp, phy.MHDR.MType)
}

func TestSendBeforeActivationFails(t *testing.T) {
	d, err := New(otaaConfig(t), &fakeRadio{}, nil, EU868, 3, nil)
	require.NoError(t, err)

	err = d.SendBytes([]byte("hi"))
	assert.ErrorIs(t, err, ErrNotActivated)
}

func TestSendRetriesAndAlwaysAdvancesFCnt(t *testing.T) {
	radio := &failingThenOKRadio{fakeRadio: &fakeRadio{}, failFor: 2}
	d, err := New(abpConfig(t), radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	startFCnt := d.sess.FCntUp
	require.NoError(t, d.Send("retry me"))
	assert.Equal(t, startFCnt+3, d.sess.FCntUp, "3 attempts means FCnt advanced 3 times")
}

// failingThenOKRadio fails WritePayload on its first failFor calls, then
// succeeds, to exercise SendBytes' retry loop.
type failingThenOKRadio struct {
	*fakeRadio
	calls   int
	failFor int
}

func (r *failingThenOKRadio) WritePayload(data []byte) error {
	r.calls++
	if r.calls <= r.failFor {
		return assert.AnError
	}
	return r.fakeRadio.WritePayload(data)
}

func TestFCntPersistsAcrossRestart(t *testing.T) {
	cfg := abpConfig(t)
	d, err := New(cfg, &fakeRadio{}, nil, EU868, 3, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.SendBytes([]byte("frame")))
	}

	data, err := os.ReadFile(cfg.FCountFilename)
	require.NoError(t, err)
	assert.Equal(t, "4\n", string(data), "loaded as 1, incremented to 2, 3, 4")

	restarted, err := New(cfg, &fakeRadio{}, nil, EU868, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), restarted.sess.FCntUp, "next transmit uses FCnt 4")
}

func TestOnRxDoneDispatchesDownlinkAfterMICValidation(t *testing.T) {
	cfg := abpConfig(t)
	radio := &fakeRadio{}
	d, err := New(cfg, radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	var got []byte
	var gotType lorawan.MType
	d.SetDownlinkCallback(func(payload []byte, mtype lorawan.MType) {
		got = payload
		gotType = mtype
	})

	fPort := uint8(5)
	mac := &lorawan.MACPayload{
		FHDR:       lorawan.FHDR{DevAddr: d.sess.DevAddr, FCnt: 0},
		FPort:      &fPort,
		FRMPayload: []byte("downlink data"),
	}
	phy := lorawan.PHYPayload{
		MHDR:       lorawan.NewMHDR(lorawan.UnconfirmedDataDown, lorawan.LoRaWANR1),
		MACPayload: mac,
	}
	require.NoError(t, phy.EncryptFRMPayload(d.sess.AppSKey))
	require.NoError(t, phy.SetDownlinkDataMIC(d.sess.NwkSKey, 0))
	b, err := phy.MarshalBinary()
	require.NoError(t, err)

	radio.queueRx(b)
	require.NoError(t, d.OnRxDone())

	assert.Equal(t, []byte("downlink data"), got)
	assert.Equal(t, lorawan.UnconfirmedDataDown, gotType)
	assert.Equal(t, StateJoined, d.state)
}

func TestOnRxDoneIgnoresReplayedDownlink(t *testing.T) {
	cfg := abpConfig(t)
	radio := &fakeRadio{}
	d, err := New(cfg, radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	callCount := 0
	d.SetDownlinkCallback(func([]byte, lorawan.MType) { callCount++ })

	frame := func(fCnt uint16) []byte {
		fPort := uint8(1)
		mac := &lorawan.MACPayload{
			FHDR:       lorawan.FHDR{DevAddr: d.sess.DevAddr, FCnt: fCnt},
			FPort:      &fPort,
			FRMPayload: []byte("x"),
		}
		phy := lorawan.PHYPayload{MHDR: lorawan.NewMHDR(lorawan.UnconfirmedDataDown, lorawan.LoRaWANR1), MACPayload: mac}
		require.NoError(t, phy.EncryptFRMPayload(d.sess.AppSKey))
		require.NoError(t, phy.SetDownlinkDataMIC(d.sess.NwkSKey, uint32(fCnt)))
		b, err := phy.MarshalBinary()
		require.NoError(t, err)
		return b
	}

	radio.queueRx(frame(0))
	require.NoError(t, d.OnRxDone())
	assert.Equal(t, 1, callCount)

	radio.queueRx(frame(0))
	require.NoError(t, d.OnRxDone())
	assert.Equal(t, 1, callCount, "replayed FCnt must not reach the callback")
}

func TestOnRxDoneDecryptsFPortZeroWithNwkSKey(t *testing.T) {
	cfg := abpConfig(t)
	radio := &fakeRadio{}
	d, err := New(cfg, radio, nil, EU868, 3, nil)
	require.NoError(t, err)

	var got []byte
	d.SetDownlinkCallback(func(payload []byte, mtype lorawan.MType) { got = payload })

	fPort := uint8(0)
	mac := &lorawan.MACPayload{
		FHDR:       lorawan.FHDR{DevAddr: d.sess.DevAddr, FCnt: 0},
		FPort:      &fPort,
		FRMPayload: []byte{0x02, 0x03},
	}
	phy := lorawan.PHYPayload{
		MHDR:       lorawan.NewMHDR(lorawan.UnconfirmedDataDown, lorawan.LoRaWANR1),
		MACPayload: mac,
	}
	// FPort 0 carries MAC commands, encrypted under NwkSKey rather than
	// AppSKey.
	require.NoError(t, phy.EncryptFRMPayload(d.sess.NwkSKey))
	require.NoError(t, phy.SetDownlinkDataMIC(d.sess.NwkSKey, 0))
	b, err := phy.MarshalBinary()
	require.NoError(t, err)

	radio.queueRx(b)
	require.NoError(t, d.OnRxDone())

	assert.Equal(t, []byte{0x02, 0x03}, got, "FPort 0 downlink must decrypt under NwkSKey")
}

func TestGetGPSReturnsFix(t *testing.T) {
	cfg := abpConfig(t)
	cfg.GPSWaitPeriod = 1
	want := &GPSFix{Latitude: 1.23, Longitude: 4.56}
	d, err := New(cfg, &fakeRadio{}, &fakeGPS{fix: want}, EU868, 3, nil)
	require.NoError(t, err)

	got, err := d.GetGPS(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Same(t, want, d.lastFix, "GetGPS should cache the last fix for join logging")
}

func TestGetGPSTimesOut(t *testing.T) {
	cfg := abpConfig(t)
	cfg.GPSWaitPeriod = 1
	d, err := New(cfg, &fakeRadio{}, &fakeGPS{}, EU868, 3, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = d.GetGPS(context.Background())
	assert.ErrorIs(t, err, ErrGPSTimeout)
	assert.WithinDuration(t, start.Add(time.Second), time.Now(), 2*time.Second)
}

func TestGetGPSWithoutReceiverErrors(t *testing.T) {
	d, err := New(abpConfig(t), &fakeRadio{}, nil, EU868, 3, nil)
	require.NoError(t, err)

	_, err = d.GetGPS(context.Background())
	assert.Error(t, err)
}

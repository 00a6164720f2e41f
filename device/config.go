package device

import (
	"encoding/hex"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/draginohat/lorawan-endpoint/lorawan"
)

// AuthMode selects how a device obtains its session: a pre-provisioned
// ABP session, or an OTAA join performed at startup.
type AuthMode string

const (
	AuthABP  AuthMode = "ABP"
	AuthOTAA AuthMode = "OTAA"
)

// Config is the device configuration file: board/GPS serial settings,
// radio parameters, the auth mode and its credentials, and (for OTAA) an
// optional cached session left behind by a previous successful join.
type Config struct {
	GPSBaudRate      int    `yaml:"gps_baud_rate"`
	GPSSerialPort    string `yaml:"gps_serial_port"`
	GPSSerialTimeout int    `yaml:"gps_serial_timeout"`
	GPSWaitPeriod    int    `yaml:"gps_wait_period"`

	SpreadingFactor int    `yaml:"spreading_factor"`
	MaxPowerHex     string `yaml:"max_power"`
	OutputPowerHex  string `yaml:"output_power"`
	SyncWordHex     string `yaml:"sync_word"`
	RxCRC           bool   `yaml:"rx_crc"`

	FCountFilename string `yaml:"fcount_filename"`

	AuthMode AuthMode `yaml:"auth_mode"`

	// ABP credentials, hex-encoded.
	DevAddrHex string `yaml:"devaddr,omitempty"`
	NwkSKeyHex string `yaml:"nwskey,omitempty"`
	AppSKeyHex string `yaml:"appskey,omitempty"`

	// OTAA credentials, hex-encoded.
	DevEUIHex string `yaml:"deveui,omitempty"`
	AppEUIHex string `yaml:"appeui,omitempty"`
	AppKeyHex string `yaml:"appkey,omitempty"`

	// Cached OTAA session, populated by SaveSession after a successful
	// join so a restarted device can skip re-joining on the next run.
	CachedDevAddrHex string  `yaml:"cached_devaddr,omitempty"`
	CachedNwkSKeyHex string  `yaml:"cached_nwkskey,omitempty"`
	CachedAppSKeyHex string  `yaml:"cached_appskey,omitempty"`
	CachedFCount     *uint32 `yaml:"cached_fcount,omitempty"`

	path string
}

// Load reads and parses a YAML config file.
func Load(path string, log *logrus.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "device: reading config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "device: parsing config %s", path)
	}
	cfg.path = path

	switch cfg.AuthMode {
	case AuthABP, AuthOTAA:
	default:
		return nil, errors.Wrapf(ErrUnsupportedAuthMode, "got %q", cfg.AuthMode)
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"auth_mode":        cfg.AuthMode,
			"spreading_factor": cfg.SpreadingFactor,
			"gps_serial_port":  cfg.GPSSerialPort,
		}).Debug("loaded device config")
	}

	return &cfg, nil
}

// MaxPower parses the hex-encoded max_power field.
func (c *Config) MaxPower() (byte, error) { return parseHexByte(c.MaxPowerHex) }

// OutputPower parses the hex-encoded output_power field.
func (c *Config) OutputPower() (byte, error) { return parseHexByte(c.OutputPowerHex) }

// SyncWord parses the hex-encoded sync_word field.
func (c *Config) SyncWord() (byte, error) { return parseHexByte(c.SyncWordHex) }

// ABPSession parses the ABP devaddr/nwskey/appskey fields.
func (c *Config) ABPSession() (devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key, err error) {
	if devAddr, err = parseDevAddr(c.DevAddrHex); err != nil {
		return
	}
	if nwkSKey, err = parseKey(c.NwkSKeyHex); err != nil {
		return
	}
	appSKey, err = parseKey(c.AppSKeyHex)
	return
}

// OTAAIdentity parses the OTAA deveui/appeui/appkey fields.
func (c *Config) OTAAIdentity() (devEUI, appEUI lorawan.EUI64, appKey lorawan.AES128Key, err error) {
	if devEUI, err = parseEUI(c.DevEUIHex); err != nil {
		return
	}
	if appEUI, err = parseEUI(c.AppEUIHex); err != nil {
		return
	}
	appKey, err = parseKey(c.AppKeyHex)
	return
}

// Cached reports whether a previously saved OTAA session is present.
func (c *Config) Cached() bool {
	return c.CachedDevAddrHex != "" && c.CachedNwkSKeyHex != "" && c.CachedAppSKeyHex != ""
}

// CachedSession parses the cached_* fields populated by a prior join.
func (c *Config) CachedSession() (devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key, fCount uint32, err error) {
	if devAddr, err = parseDevAddr(c.CachedDevAddrHex); err != nil {
		return
	}
	if nwkSKey, err = parseKey(c.CachedNwkSKeyHex); err != nil {
		return
	}
	if appSKey, err = parseKey(c.CachedAppSKeyHex); err != nil {
		return
	}
	if c.CachedFCount != nil {
		fCount = *c.CachedFCount
	} else {
		fCount = 1
	}
	return
}

// SaveSession records a freshly joined OTAA session into the cached_*
// fields and rewrites the config file, so a restarted device can skip
// re-joining.
func (c *Config) SaveSession(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key, fCount uint32) error {
	c.CachedDevAddrHex = hex.EncodeToString(devAddr[:])
	c.CachedNwkSKeyHex = hex.EncodeToString(nwkSKey[:])
	c.CachedAppSKeyHex = hex.EncodeToString(appSKey[:])
	c.CachedFCount = &fCount

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "device: marshaling config")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "device: saving config %s", c.path)
	}
	return nil
}

func parseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "device: invalid hex byte %q", s)
	}
	return byte(v), nil
}

// parseDevAddr and parseEUI decode the config file's hex string directly
// into the type's logical (big-endian) byte order — the same order
// String() prints — rather than through UnmarshalBinary, which expects
// little-endian wire bytes and would silently reverse a value a human
// typed in the natural reading order.
func parseDevAddr(s string) (lorawan.DevAddr, error) {
	var devAddr lorawan.DevAddr
	b, err := hex.DecodeString(s)
	if err != nil {
		return devAddr, errors.Wrapf(err, "device: invalid devaddr %q", s)
	}
	if len(b) != len(devAddr) {
		return devAddr, errors.Errorf("device: devaddr %q must decode to %d bytes", s, len(devAddr))
	}
	copy(devAddr[:], b)
	return devAddr, nil
}

func parseEUI(s string) (lorawan.EUI64, error) {
	var eui lorawan.EUI64
	b, err := hex.DecodeString(s)
	if err != nil {
		return eui, errors.Wrapf(err, "device: invalid EUI %q", s)
	}
	if len(b) != len(eui) {
		return eui, errors.Errorf("device: EUI %q must decode to %d bytes", s, len(eui))
	}
	copy(eui[:], b)
	return eui, nil
}

func parseKey(s string) (lorawan.AES128Key, error) {
	var key lorawan.AES128Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, errors.Wrapf(err, "device: invalid key %q", s)
	}
	if err := key.UnmarshalBinary(b); err != nil {
		return key, err
	}
	return key, nil
}

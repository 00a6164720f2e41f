package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FCntStore persists the uplink frame counter across restarts so a device
// never replays a counter value the network has already seen.
type FCntStore interface {
	Load() (uint32, error)
	Save(fCnt uint32) error
}

// FileFCntStore persists a single decimal integer followed by a newline
// to a plain file, truncating and rewriting the whole file on every save.
type FileFCntStore struct {
	// Path is the frame-counter file.
	Path string

	// LegacyPath, if set, is consulted by Load when Path does not exist
	// or cannot be parsed, covering counter files left behind by a
	// previous firmware version.
	LegacyPath string
}

// NewFileFCntStore returns a FileFCntStore with no legacy fallback path.
func NewFileFCntStore(path string) *FileFCntStore {
	return &FileFCntStore{Path: path}
}

// Load reads the frame counter from Path. If Path is missing or contains
// something other than a decimal integer, it falls back to LegacyPath
// (when set) and finally defaults to 1 — the value a brand new device
// starts transmitting with.
func (s *FileFCntStore) Load() (uint32, error) {
	if fCnt, err := readFCntFile(s.Path); err == nil {
		return fCnt, nil
	}

	if s.LegacyPath != "" {
		if fCnt, err := readFCntFile(s.LegacyPath); err == nil {
			return fCnt, nil
		}
	}

	return 1, nil
}

// Save truncates Path and writes fCnt as a decimal integer followed by a
// newline.
func (s *FileFCntStore) Save(fCnt uint32) error {
	data := []byte(fmt.Sprintf("%d\n", fCnt))
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return errors.Wrapf(err, "session: saving frame counter to %s", s.Path)
	}
	return nil
}

func readFCntFile(path string) (uint32, error) {
	if path == "" {
		return 0, errors.New("session: empty frame counter path")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "session: reading frame counter from %s", path)
	}

	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	fCnt, err := strconv.ParseUint(line, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "session: parsing frame counter in %s", path)
	}
	return uint32(fCnt), nil
}

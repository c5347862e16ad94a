// Package utmp reads the system login-record store (utmp format) and turns
// it into session records the monitor can track. Only USER_PROCESS rows are
// kept; boot markers, dead entries and run-level records are filtered out
// during parsing.
package utmp

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// DefaultPath is where the login subsystem keeps the live record store.
const DefaultPath = "/var/run/utmp"

// Record types as defined in <utmp.h>.
const (
	typeEmpty        = 0
	typeRunLevel     = 1
	typeBootTime     = 2
	typeNewTime      = 3
	typeOldTime      = 4
	typeInitProcess  = 5
	typeLoginProcess = 6
	typeUserProcess  = 7
	typeDeadProcess  = 8
	typeAccounting   = 9
)

// rawRecord is the on-disk layout of one utmp entry (glibc ABI, 384 bytes).
type rawRecord struct {
	Type     int16
	_        [2]byte
	PID      int32
	Line     [32]byte
	ID       [4]byte
	User     [32]byte
	Host     [256]byte
	Exit     [4]byte
	Session  int32
	TVSec    int32
	TVUsec   int32
	AddrV6   [4]int32
	Reserved [20]byte
}

const recordSize = 384

// SessionRecord is one active login session parsed from the store.
type SessionRecord struct {
	PID       int32
	User      string
	Line      string
	Host      string
	LoginTime time.Time
}

// ParseFile reads and parses the entire store at path. Any I/O or decoding
// failure is returned to the caller; a failed read is fatal to the monitor.
func ParseFile(path string) ([]SessionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open utmp")
	}
	defer f.Close()
	records, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return records, nil
}

// Parse decodes utmp records from r until EOF, keeping only user-process
// rows. A record that is neither complete nor absent is a malformed store.
func Parse(r io.Reader) ([]SessionRecord, error) {
	var records []SessionRecord
	for {
		var raw rawRecord
		err := binary.Read(r, binary.LittleEndian, &raw)
		if err == io.EOF {
			return records, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.New("truncated record")
		}
		if err != nil {
			return nil, err
		}
		if raw.Type != typeUserProcess {
			continue
		}
		records = append(records, SessionRecord{
			PID:       raw.PID,
			User:      cString(raw.User[:]),
			Line:      cString(raw.Line[:]),
			Host:      cString(raw.Host[:]),
			LoginTime: time.Unix(int64(raw.TVSec), int64(raw.TVUsec)*int64(time.Microsecond)),
		})
	}
}

// cString trims a fixed-size NUL-padded field to its string value.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

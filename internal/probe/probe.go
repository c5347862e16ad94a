// Package probe answers process liveness questions for the monitor and
// carries the session termination capability.
package probe

import (
	"golang.org/x/sys/unix"

	log "github.com/sirupsen/logrus"
	"github.com/shirou/gopsutil/v3/process"
)

// Status is the outcome of a liveness probe.
type Status int

const (
	// Gone means the pid no longer exists; the record it came from is stale
	// and must be dropped from the batch.
	Gone Status = iota
	// Restricted means the process exists but the monitor may not signal it.
	Restricted
	// Signalable means the process exists and accepts our signals.
	Signalable
)

// Check delivers the no-op signal to pid and classifies the result. ESRCH is
// a normal filtering outcome, not an error; any result other than ESRCH or
// EPERM counts as signalable.
func Check(pid int32) Status {
	switch err := unix.Kill(int(pid), 0); err {
	case unix.ESRCH:
		return Gone
	case unix.EPERM:
		return Restricted
	default:
		return Signalable
	}
}

// Terminate requests forceful termination of the session's process. It is
// fire-and-forget: the process may already be gone, so failures are logged
// at debug level and otherwise ignored.
func Terminate(pid int32) {
	p, err := process.NewProcess(pid)
	if err != nil {
		log.WithFields(log.Fields{"pid": pid, "error": err}).Debug("terminate: process lookup failed")
		return
	}
	if err := p.Kill(); err != nil {
		log.WithFields(log.Fields{"pid": pid, "error": err}).Debug("terminate: kill failed")
	}
}

// Command reports the short command name of pid for display purposes.
// Unknown or unreadable processes yield an empty string.
func Command(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}

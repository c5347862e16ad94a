// Package monitor maintains the live view of who is logged into the
// machine. It runs a single-goroutine cycle: read the login-record store,
// probe each session's process, reconcile the tracked-process set, publish
// the complete entry batch, then block until the store changes or a tracked
// process exits.
package monitor

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/whosthere/whosthere/internal/probe"
	"github.com/whosthere/whosthere/internal/session"
	"github.com/whosthere/whosthere/internal/utmp"
)

// Multiplexer is the single blocking wait point the monitor registers its
// sources with. The production implementation is poller.Poller; tests count
// calls against a fake.
//
// TrackExit opens and registers a liveness handle for pid. ForgetExit
// deregisters and releases it. Wait blocks until the store changed or a
// tracked process exited, draining pending change notifications before
// returning.
type Multiplexer interface {
	TrackExit(pid int32) error
	ForgetExit(pid int32) error
	Wait() (storeChanged bool, err error)
}

// Config carries the values the monitor needs at construction. Display is
// captured once at startup and passed in explicitly; there is no ambient
// global to consult later.
type Config struct {
	// UTMPPath is the login-record store to read and watch.
	UTMPPath string
	// Display identifies the monitor's own session line; entries whose
	// line matches it are flagged IsCurrent.
	Display string
	// IgnoredHosts marks sessions the presentation layer should not treat
	// as noteworthy, e.g. a login-screen greeter.
	IgnoredHosts []string
	// Location renders login timestamps. Nil falls back to the stored
	// offset spelled out explicitly.
	Location *time.Location
}

type Monitor struct {
	cfg     Config
	ignored map[string]bool
	mux     Multiplexer
	tracked map[int32]bool

	// Injection points for tests; production values read the real store
	// and probe real processes.
	readStore func(path string) ([]utmp.SessionRecord, error)
	checkPID  func(pid int32) probe.Status
	command   func(pid int32) string
}

// New builds a monitor over the given multiplexer. A missing display is a
// fatal startup condition, not a per-cycle error.
func New(cfg Config, mux Multiplexer) (*Monitor, error) {
	if cfg.Display == "" {
		return nil, errors.New("no display specified")
	}
	if cfg.UTMPPath == "" {
		cfg.UTMPPath = utmp.DefaultPath
	}
	ignored := make(map[string]bool, len(cfg.IgnoredHosts))
	for _, h := range cfg.IgnoredHosts {
		ignored[h] = true
	}
	return &Monitor{
		cfg:       cfg,
		ignored:   ignored,
		mux:       mux,
		tracked:   make(map[int32]bool),
		readStore: utmp.ParseFile,
		checkPID:  probe.Check,
		command:   probe.Command,
	}, nil
}

// Run drives the monitor until a fatal error occurs. Every cycle invokes
// publish exactly once with the complete current batch; publish is never
// called again after an error. Run never returns nil.
func (m *Monitor) Run(publish func([]session.Entry)) error {
	for {
		records, err := m.readStore(m.cfg.UTMPPath)
		if err != nil {
			return err
		}
		entries := m.buildEntries(records)
		if err := m.reconcile(entries); err != nil {
			return err
		}
		publish(entries)
		if _, err := m.mux.Wait(); err != nil {
			return err
		}
	}
}

// buildEntries probes each record once and converts the live ones into
// entries. Records whose process no longer exists are stale and dropped.
// Duplicate pids collapse to the last occurrence, keeping first position,
// so pids are unique within the batch.
func (m *Monitor) buildEntries(records []utmp.SessionRecord) []session.Entry {
	entries := make([]session.Entry, 0, len(records))
	index := make(map[int32]int, len(records))
	for _, rec := range records {
		status := m.checkPID(rec.PID)
		if status == probe.Gone {
			continue
		}
		entry := session.Entry{
			PID:          rec.PID,
			Label:        rec.Label(m.cfg.Location),
			Command:      m.command(rec.PID),
			IsCurrent:    rec.Line == m.cfg.Display,
			ShouldIgnore: m.ignored[rec.Host],
			CanKill:      status == probe.Signalable,
		}
		if i, ok := index[rec.PID]; ok {
			entries[i] = entry
			continue
		}
		index[rec.PID] = len(entries)
		entries = append(entries, entry)
	}
	return entries
}

// reconcile diffs the previous tracked-process set against the new batch.
// Carried-over pids keep their handle untouched; re-registering could
// momentarily lose an exit notification. New pids get a handle registered,
// departed pids get theirs released. Any action failure is fatal.
func (m *Monitor) reconcile(entries []session.Entry) error {
	old := m.tracked
	next := make(map[int32]bool, len(entries))
	for _, e := range entries {
		if old[e.PID] {
			delete(old, e.PID)
			next[e.PID] = true
			continue
		}
		if err := m.mux.TrackExit(e.PID); err != nil {
			return errors.Wrapf(err, "failed to track pid %d", e.PID)
		}
		log.WithField("pid", e.PID).Debug("tracking session process")
		next[e.PID] = true
	}
	for pid := range old {
		if err := m.mux.ForgetExit(pid); err != nil {
			return errors.Wrapf(err, "failed to release pid %d", pid)
		}
		log.WithField("pid", pid).Debug("session process departed")
	}
	m.tracked = next
	return nil
}

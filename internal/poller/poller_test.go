package poller

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func newTestPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// waitResult runs Wait in a goroutine so tests can bound the blocking call.
func waitResult(t *testing.T, p *Poller) (bool, error) {
	t.Helper()
	type result struct {
		changed bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		changed, err := p.Wait()
		done <- result{changed, err}
	}()
	select {
	case r := <-done:
		return r.changed, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return")
		return false, nil
	}
}

func TestWaitOnStoreChange(t *testing.T) {
	p := newTestPoller(t)

	path := filepath.Join(t.TempDir(), "utmp")
	if err := os.WriteFile(path, []byte("initial"), 0o644); err != nil {
		t.Fatalf("write store: %v", err)
	}
	if err := p.WatchFile(path); err != nil {
		t.Fatalf("WatchFile() error: %v", err)
	}

	// A write followed by close is exactly what the login subsystem does.
	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return
		}
		f.Write([]byte("update"))
		f.Close()
	}()

	changed, err := waitResult(t, p)
	assert.NoError(t, err)
	assert.True(t, changed)
}

func TestWatchFileMissing(t *testing.T) {
	p := newTestPoller(t)
	err := p.WatchFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestWaitOnProcessExit(t *testing.T) {
	p := newTestPoller(t)

	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	defer cmd.Wait()
	pid := int32(cmd.Process.Pid)

	if err := p.TrackExit(pid); err != nil {
		if unixENOSYS(err) {
			t.Skip("pidfd_open not supported by this kernel")
		}
		t.Fatalf("TrackExit() error: %v", err)
	}
	assert.Equal(t, 1, p.Tracked())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cmd.Process.Kill()
	}()

	changed, err := waitResult(t, p)
	assert.NoError(t, err)
	assert.False(t, changed, "process exit must not report a store change")

	assert.NoError(t, p.ForgetExit(pid))
	assert.Equal(t, 0, p.Tracked())
}

func TestTrackExitNonexistent(t *testing.T) {
	p := newTestPoller(t)
	// Above pid_max; pidfd_open must fail, and the monitor treats that
	// as fatal rather than silently dropping the pid.
	err := p.TrackExit(1 << 30)
	if err != nil && unixENOSYS(err) {
		t.Skip("pidfd_open not supported by this kernel")
	}
	assert.Error(t, err)
}

func TestForgetExitUntracked(t *testing.T) {
	p := newTestPoller(t)
	assert.Error(t, p.ForgetExit(12345))
}

func unixENOSYS(err error) bool {
	return errors.Is(err, unix.ENOSYS)
}

// Package poller is the monitor's single blocking wait point. One epoll
// instance multiplexes two classes of sources: a fixed change source for the
// login-record store (inotify, token 0) and one exit source per tracked
// process (pidfd, token derived from the pid).
package poller

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// tokenChange identifies the store change source. Pid-derived tokens can
// never collide with it because pid 0 is the kernel scheduler.
const tokenChange = 0

// Poller owns the epoll instance and every source registered with it.
type Poller struct {
	epfd   int
	change *changeSource
	exits  map[int32]int // pid -> pidfd
	events []unix.EpollEvent
}

type changeSource struct {
	fd  int
	wd  int
	buf [4096]byte
}

// New creates an empty multiplexer.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create epoll instance")
	}
	return &Poller{
		epfd:   epfd,
		exits:  make(map[int32]int),
		events: make([]unix.EpollEvent, 64),
	}, nil
}

// WatchFile registers path as the store change source. The underlying watch
// fires on write-completion, the point at which the login subsystem has
// finished rewriting the store.
func (p *Poller) WatchFile(path string) error {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return errors.Wrap(err, "failed to init inotify")
	}
	wd, err := unix.InotifyAddWatch(fd, path, unix.IN_CLOSE_WRITE)
	if err != nil {
		unix.Close(fd)
		return errors.Wrapf(err, "failed to watch %s", path)
	}
	if err := p.register(fd, tokenChange); err != nil {
		unix.Close(fd)
		return err
	}
	p.change = &changeSource{fd: fd, wd: wd}
	return nil
}

// register adds fd to the epoll instance under the given token. Tokens ride
// in the event's Fd slot; pids fit because they are int32 on Linux.
func (p *Poller) register(fd int, token int32) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     token,
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrap(err, "failed to register with epoll")
	}
	return nil
}

// TrackExit opens a liveness handle for pid and registers it. The handle
// becomes readable exactly when the process terminates. The caller treats a
// failure here as fatal: the process may have exited between the liveness
// probe and this call, and silently dropping it could mask a real bug.
func (p *Poller) TrackExit(pid int32) error {
	fd, err := unix.PidfdOpen(int(pid), 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open pidfd for %d", pid)
	}
	if err := p.register(fd, pid); err != nil {
		unix.Close(fd)
		return err
	}
	p.exits[pid] = fd
	return nil
}

// ForgetExit deregisters and releases the liveness handle for pid. Failures
// are surfaced: a leaked handle would eventually exhaust descriptor capacity.
func (p *Poller) ForgetExit(pid int32) error {
	fd, ok := p.exits[pid]
	if !ok {
		return errors.Errorf("pid %d is not tracked", pid)
	}
	delete(p.exits, pid)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		unix.Close(fd)
		return errors.Wrapf(err, "failed to deregister pidfd for %d", pid)
	}
	if err := unix.Close(fd); err != nil {
		return errors.Wrapf(err, "failed to close pidfd for %d", pid)
	}
	return nil
}

// Tracked reports how many exit sources are currently registered.
func (p *Poller) Tracked() int {
	return len(p.exits)
}

// Wait blocks until at least one registered source becomes ready. Benign
// signal interruptions are retried transparently. When the change source
// fired it is drained before returning so the edge-triggered watch re-arms;
// storeChanged reports whether it fired. Which exit sources fired is not
// reported: any wake-up triggers a full monitor cycle.
func (p *Poller) Wait() (storeChanged bool, err error) {
	var n int
	for {
		n, err = unix.EpollWait(p.epfd, p.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, errors.Wrap(err, "failed to wait on poller")
		}
		break
	}
	for _, ev := range p.events[:n] {
		if ev.Fd == tokenChange {
			storeChanged = true
		}
	}
	if storeChanged && p.change != nil {
		if err := p.change.drain(); err != nil {
			return true, err
		}
	}
	return storeChanged, nil
}

// drain reads pending change notifications to exhaustion, treating "would
// block" as drained. Without this an edge-style notification could be lost.
func (c *changeSource) drain() error {
	for {
		n, err := unix.Read(c.fd, c.buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to drain change notifications")
		}
		if n == 0 {
			return nil
		}
	}
}

// Close releases every registered source and the epoll instance itself.
func (p *Poller) Close() error {
	var firstErr error
	for pid, fd := range p.exits {
		delete(p.exits, pid)
		if err := unix.Close(fd); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close pidfd for %d", pid)
		}
	}
	if p.change != nil {
		if err := unix.Close(p.change.fd); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to close change source")
		}
		p.change = nil
	}
	if err := unix.Close(p.epfd); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "failed to close epoll instance")
	}
	return firstErr
}

//go:build unix
// +build unix

package poller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/chylli-binary/ioasync/util"
)

const (
	readEvents  = unix.POLLIN | unix.POLLPRI
	writeEvents = unix.POLLOUT
	hupEvents   = unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

// Poll is a poll(2)-backed Multiplexer. It keeps one pollfd slot per
// registered fd, in registration order until a Del, which moves the
// last slot into the freed one.
type Poll struct {
	fds    []unix.PollFd
	index  map[int]int
	closed util.AtomicBool
}

func New() Multiplexer {
	return NewPoll()
}

func NewPoll() *Poll {
	return &Poll{
		index: make(map[int]int),
	}
}

func (p *Poll) Add(fd int, events Event) error {
	if p.closed.IsSet() {
		return ErrClosed
	}
	if _, ok := p.index[fd]; ok {
		return ErrFdExists
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{
		Fd:     int32(fd),
		Events: interestBits(events),
	})
	return nil
}

func (p *Poll) Mod(fd int, events Event) error {
	i, ok := p.index[fd]
	if !ok {
		return ErrFdNotExists
	}
	p.fds[i].Events = interestBits(events)
	return nil
}

func (p *Poll) Del(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return ErrFdNotExists
	}
	delete(p.index, fd)
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	return nil
}

func (p *Poll) Wait(timeout time.Duration) ([]Ready, error) {
	if p.closed.IsSet() {
		return nil, ErrClosed
	}
	ms := -1
	if timeout >= 0 {
		// poll(2) counts whole milliseconds; round up so a wait
		// clamped to a timer deadline does not end just short of it
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	n, err := unix.Poll(p.fds, ms)
	if err != nil {
		if err == unix.EINTR || util.TemporaryErr(err) {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]Ready, 0, n)
	for i := range p.fds {
		revents := p.fds[i].Revents
		if revents == 0 {
			continue
		}
		p.fds[i].Revents = 0

		var ev Event
		if revents&readEvents != 0 {
			ev |= EventRead
		}
		if revents&writeEvents != 0 {
			ev |= EventWrite
		}
		if revents&hupEvents != 0 {
			ev |= EventHup
		}
		ready = append(ready, Ready{Fd: int(p.fds[i].Fd), Events: ev})
	}
	return ready, nil
}

func (p *Poll) Len() int {
	return len(p.fds)
}

func (p *Poll) Fds() []int {
	fds := make([]int, 0, len(p.fds))
	for i := range p.fds {
		fds = append(fds, int(p.fds[i].Fd))
	}
	return fds
}

// Close marks the multiplexer unusable. The fds themselves belong to
// the registered notifiers and are left open.
func (p *Poll) Close() error {
	if p.closed.IsSet() {
		return ErrClosed
	}
	p.closed.Set()
	p.fds = nil
	p.index = nil
	return nil
}

func interestBits(events Event) int16 {
	var bits int16
	if events&EventRead != 0 {
		bits |= readEvents
	}
	if events&EventWrite != 0 {
		bits |= writeEvents
	}
	return bits
}

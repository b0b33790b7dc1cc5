//go:build unix
// +build unix

package ioasync

import (
	"os"
	"os/signal"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/chylli-binary/ioasync/iolog"
	"github.com/chylli-binary/ioasync/util"
)

// ChildCallback receives a reaped pid and its raw wait status word.
type ChildCallback func(pid int, status int)

type childExit struct {
	pid    int
	status int
}

// childWatcher owns the SIGCHLD machinery shared by the loop backends:
// a wake pipe the backend polls, a goroutine forwarding SIGCHLD to the
// pipe, and a FIFO of reaped exits awaiting dispatch. Everything else
// runs on the loop thread.
type childWatcher struct {
	watches map[int][]ChildCallback
	pending *queue.Queue

	wakeR, wakeW int
	sigCh        chan os.Signal
	done         chan struct{}
}

func newChildWatcher() (*childWatcher, error) {
	r, w, err := util.Pipe()
	if err != nil {
		return nil, err
	}
	cw := &childWatcher{
		watches: make(map[int][]ChildCallback),
		pending: queue.New(),
		wakeR:   r,
		wakeW:   w,
		sigCh:   make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
	signal.Notify(cw.sigCh, unix.SIGCHLD)
	go cw.forward()
	return cw, nil
}

// forward runs off-thread; it only touches the write end of the pipe.
func (cw *childWatcher) forward() {
	wake := []byte{1}
	for {
		select {
		case <-cw.sigCh:
			if _, err := unix.Write(cw.wakeW, wake); err != nil && err != unix.EAGAIN {
				iolog.Errorf("[childWatcher.forward]: %s", err.Error())
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *childWatcher) wakeFd() int {
	return cw.wakeR
}

// kick wakes the next wait; a watched child may have exited before its
// watch existed, so its SIGCHLD was never forwarded.
func (cw *childWatcher) kick() {
	if _, err := unix.Write(cw.wakeW, []byte{1}); err != nil && err != unix.EAGAIN {
		iolog.Errorf("[childWatcher.kick]: %s", err.Error())
	}
}

func (cw *childWatcher) watch(pid int, code ChildCallback) {
	cw.watches[pid] = append(cw.watches[pid], code)
}

func (cw *childWatcher) unwatch(pid int) {
	delete(cw.watches, pid)
}

// reap drains the wake pipe and collects every exited child without
// blocking. Reaped exits queue up until dispatch runs.
func (cw *childWatcher) reap() {
	buf := make([]byte, 8)
	for {
		n, err := unix.Read(cw.wakeR, buf)
		if n <= 0 || err != nil {
			break
		}
	}

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			break
		}
		cw.pending.Add(childExit{pid: pid, status: int(ws)})
	}
}

// dispatch invokes the registered callbacks for each queued exit, in
// reap order. Exits with no registered watcher are discarded.
func (cw *childWatcher) dispatch() {
	for cw.pending.Length() > 0 {
		e := cw.pending.Remove().(childExit)
		codes, ok := cw.watches[e.pid]
		if !ok {
			iolog.Debugf("[childWatcher.dispatch]: discard pid %d status %d", e.pid, e.status)
			continue
		}
		for _, code := range append([]ChildCallback(nil), codes...) {
			code(e.pid, e.status)
		}
	}
}

func (cw *childWatcher) close() {
	signal.Stop(cw.sigCh)
	close(cw.done)
	_ = unix.Close(cw.wakeR)
	_ = unix.Close(cw.wakeW)
}

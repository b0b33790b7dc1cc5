//go:build unix
// +build unix

package ioasync

import (
	"time"

	"github.com/chylli-binary/ioasync/iolog"
	"github.com/chylli-binary/ioasync/poller"
)

// PollLoop implements Loop over a poll(2)-style multiplexer with
// per-fd interest masks. Dispatch walks notifiers in registration
// order; the wait and the dispatch are separated so an externally
// driven poll can reuse PostPoll.
type PollLoop struct {
	loopCore
	mux    poller.Multiplexer
	ready  []poller.Ready
	wakeFd int
}

// NewPollLoop builds a PollLoop. A nil mux gets a fresh poll(2)
// multiplexer; passing one in lets the caller share an existing set.
func NewPollLoop(mux poller.Multiplexer) *PollLoop {
	if mux == nil {
		mux = poller.NewPoll()
	}
	l := &PollLoop{
		mux:    mux,
		wakeFd: -1,
	}
	l.loopCore.init(l)
	return l
}

func (l *PollLoop) LoopOnce(timeout time.Duration) (int, error) {
	wait := l.clampToTimers(timeout)

	// poll with an empty fd set returns immediately on some
	// platforms; timer-only waits fall back to a plain sleep.
	if l.mux.Len() == 0 && wait >= 0 {
		if wait > 0 {
			time.Sleep(wait)
		}
		l.PostPoll()
		return 0, nil
	}

	ready, err := l.mux.Wait(wait)
	if err != nil {
		return 0, err
	}
	l.ready = ready

	count := 0
	for _, r := range ready {
		if r.Fd != l.wakeFd {
			count++
		}
	}
	l.PostPoll()
	return count, nil
}

// PostPoll dispatches whatever the last wait observed: children are
// reaped first, then ready fds in notifier registration order, then
// expired timers. The observed events are consumed; calling PostPoll
// again without an intervening wait dispatches nothing new.
func (l *PollLoop) PostPoll() {
	ready := l.ready
	l.ready = nil

	l.reapChildren()

	if len(ready) > 0 {
		events := make(map[int]poller.Event, len(ready))
		for _, r := range ready {
			if r.Fd != l.wakeFd {
				events[r.Fd] = r.Events
			}
		}

		snapshot := append([]*Notifier(nil), l.notifiers...)
		for _, n := range snapshot {
			if n.memberSet != Loop(l) {
				continue
			}
			if rh := n.readHandle; rh != nil {
				// HUP counts as readable so a peer close is
				// observed through the zero-byte read.
				if ev := events[rh.Fd()]; ev&(poller.EventRead|poller.EventHup) != 0 {
					n.dispatchReadReady()
				}
			}
			if n.memberSet != Loop(l) {
				continue
			}
			if wh := n.writeHandle; wh != nil {
				ev := events[wh.Fd()]
				if ev&poller.EventWrite != 0 || (ev&poller.EventHup != 0 && n.wantWrite) {
					n.dispatchWriteReady()
				}
			}
		}
	}

	l.timers.fireExpired(time.Now())
}

func (l *PollLoop) Close() error {
	l.shutdown()
	return l.mux.Close()
}

// Multiplexer exposes the underlying fd set.
func (l *PollLoop) Multiplexer() poller.Multiplexer {
	return l.mux
}

func (l *PollLoop) installNotifier(n *Notifier) error {
	rh, wh := n.readHandle, n.writeHandle
	if rh != nil {
		if err := l.mux.Add(rh.Fd(), readInterest(n)); err != nil {
			return err
		}
	}
	if wh != nil && (rh == nil || wh.Fd() != rh.Fd()) {
		if err := l.mux.Add(wh.Fd(), writeInterest(n)); err != nil {
			if rh != nil {
				_ = l.mux.Del(rh.Fd())
			}
			return err
		}
	}
	return nil
}

func (l *PollLoop) uninstallNotifier(n *Notifier) {
	rh, wh := n.readHandle, n.writeHandle
	if rh != nil {
		if err := l.mux.Del(rh.Fd()); err != nil {
			iolog.Errorf("[mux.Del]: %s", err.Error())
		}
	}
	if wh != nil && (rh == nil || wh.Fd() != rh.Fd()) {
		if err := l.mux.Del(wh.Fd()); err != nil {
			iolog.Errorf("[mux.Del]: %s", err.Error())
		}
	}
}

func (l *PollLoop) applyWriteInterest(n *Notifier, want bool) error {
	rh, wh := n.readHandle, n.writeHandle
	if wh == nil {
		return nil
	}
	if rh != nil && rh.Fd() == wh.Fd() {
		return l.mux.Mod(wh.Fd(), readInterest(n))
	}
	return l.mux.Mod(wh.Fd(), writeInterest(n))
}

func (l *PollLoop) installChildWake(fd int) error {
	if err := l.mux.Add(fd, poller.EventRead); err != nil {
		return err
	}
	l.wakeFd = fd
	return nil
}

func (l *PollLoop) removeChildWake(fd int) {
	if err := l.mux.Del(fd); err != nil {
		iolog.Errorf("[mux.Del]: %s", err.Error())
	}
	l.wakeFd = -1
}

// readInterest is the mask for the read handle's fd; when the write
// handle shares the fd, write-interest folds into the same mask.
func readInterest(n *Notifier) poller.Event {
	ev := poller.EventRead
	if n.wantWrite && n.writeHandle != nil && n.readHandle != nil &&
		n.writeHandle.Fd() == n.readHandle.Fd() {
		ev |= poller.EventWrite
	}
	return ev
}

// writeInterest is the mask for a distinct write fd. The fd stays
// registered with an empty mask when write-interest is off so HUP is
// still observed.
func writeInterest(n *Notifier) poller.Event {
	if n.wantWrite {
		return poller.EventWrite
	}
	return 0
}

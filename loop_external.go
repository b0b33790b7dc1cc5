//go:build unix
// +build unix

package ioasync

import (
	"time"

	"github.com/chylli-binary/ioasync/iolog"
	"github.com/chylli-binary/ioasync/poller"
)

// SourceHandle is a host main loop's opaque token for a registered
// source.
type SourceHandle interface{}

// HostLoop is the callback-source surface of a host main loop the
// ExternalLoop adapts to. Fd sources report readiness events to their
// callback; timers are one-shot. RunOnce performs a single host
// iteration, blocking only when asked to.
type HostLoop interface {
	AddFDSource(fd int, events poller.Event, code func(poller.Event)) (SourceHandle, error)
	RemoveSource(h SourceHandle) error
	AddTimer(delay time.Duration, code func()) (SourceHandle, error)
	RunOnce(block bool) int
}

// ExternalLoop implements Loop by registering one source per
// (notifier, direction) with a host main loop. Interest mask changes
// are remove+add on the write source; timers and their cancellation
// map onto host timer sources.
type ExternalLoop struct {
	loopCore
	host HostLoop

	sources      map[*Notifier]*notifierSources
	timerSources map[TimerID]SourceHandle
	lastTimerID  TimerID
	wakeSource   SourceHandle

	dispatched int
}

type notifierSources struct {
	read  SourceHandle
	write SourceHandle
}

func NewExternalLoop(host HostLoop) *ExternalLoop {
	l := &ExternalLoop{
		host:         host,
		sources:      make(map[*Notifier]*notifierSources),
		timerSources: make(map[TimerID]SourceHandle),
	}
	l.loopCore.init(l)
	return l
}

func (l *ExternalLoop) LoopOnce(timeout time.Duration) (int, error) {
	l.dispatched = 0

	// a guard timer bounds the host iteration to the caller's timeout
	var guard SourceHandle
	if timeout >= 0 {
		h, err := l.host.AddTimer(timeout, func() {})
		if err != nil {
			return 0, err
		}
		guard = h
	}

	l.host.RunOnce(timeout != 0)

	if guard != nil {
		_ = l.host.RemoveSource(guard)
	}
	return l.dispatched, nil
}

func (l *ExternalLoop) EnqueueTimer(delay time.Duration, code func()) TimerID {
	l.lastTimerID++
	id := l.lastTimerID
	h, err := l.host.AddTimer(delay, func() {
		delete(l.timerSources, id)
		code()
	})
	if err != nil {
		iolog.Errorf("[host.AddTimer]: %s", err.Error())
		return id
	}
	l.timerSources[id] = h
	return id
}

func (l *ExternalLoop) CancelTimer(id TimerID) {
	if h, ok := l.timerSources[id]; ok {
		if err := l.host.RemoveSource(h); err != nil {
			iolog.Errorf("[host.RemoveSource]: %s", err.Error())
		}
		delete(l.timerSources, id)
	}
}

func (l *ExternalLoop) Close() error {
	l.shutdown()
	for id, h := range l.timerSources {
		_ = l.host.RemoveSource(h)
		delete(l.timerSources, id)
	}
	return nil
}

func (l *ExternalLoop) installNotifier(n *Notifier) error {
	src := &notifierSources{}
	if rh := n.readHandle; rh != nil {
		h, err := l.host.AddFDSource(rh.Fd(), poller.EventRead|poller.EventHup, func(ev poller.Event) {
			l.readEvent(n, ev)
		})
		if err != nil {
			return err
		}
		src.read = h
	}
	if wh := n.writeHandle; wh != nil {
		h, err := l.host.AddFDSource(wh.Fd(), writeSourceEvents(n), func(ev poller.Event) {
			l.writeEvent(n, ev)
		})
		if err != nil {
			if src.read != nil {
				_ = l.host.RemoveSource(src.read)
			}
			return err
		}
		src.write = h
	}
	l.sources[n] = src
	return nil
}

func (l *ExternalLoop) uninstallNotifier(n *Notifier) {
	src, ok := l.sources[n]
	if !ok {
		return
	}
	delete(l.sources, n)
	if src.read != nil {
		if err := l.host.RemoveSource(src.read); err != nil {
			iolog.Errorf("[host.RemoveSource]: %s", err.Error())
		}
	}
	if src.write != nil {
		if err := l.host.RemoveSource(src.write); err != nil {
			iolog.Errorf("[host.RemoveSource]: %s", err.Error())
		}
	}
}

func (l *ExternalLoop) applyWriteInterest(n *Notifier, want bool) error {
	src, ok := l.sources[n]
	if !ok || n.writeHandle == nil {
		return nil
	}
	if src.write != nil {
		if err := l.host.RemoveSource(src.write); err != nil {
			return err
		}
		src.write = nil
	}
	h, err := l.host.AddFDSource(n.writeHandle.Fd(), writeSourceEvents(n), func(ev poller.Event) {
		l.writeEvent(n, ev)
	})
	if err != nil {
		return err
	}
	src.write = h
	return nil
}

func (l *ExternalLoop) installChildWake(fd int) error {
	h, err := l.host.AddFDSource(fd, poller.EventRead, func(poller.Event) {
		l.reapChildren()
	})
	if err != nil {
		return err
	}
	l.wakeSource = h
	return nil
}

func (l *ExternalLoop) removeChildWake(fd int) {
	if l.wakeSource != nil {
		if err := l.host.RemoveSource(l.wakeSource); err != nil {
			iolog.Errorf("[host.RemoveSource]: %s", err.Error())
		}
		l.wakeSource = nil
	}
}

func (l *ExternalLoop) readEvent(n *Notifier, ev poller.Event) {
	if n.memberSet != Loop(l) {
		return
	}
	if ev&(poller.EventRead|poller.EventHup) != 0 {
		l.dispatched++
		n.dispatchReadReady()
	}
}

func (l *ExternalLoop) writeEvent(n *Notifier, ev poller.Event) {
	if n.memberSet != Loop(l) {
		return
	}
	if ev&poller.EventWrite != 0 || (ev&poller.EventHup != 0 && n.wantWrite) {
		l.dispatched++
		n.dispatchWriteReady()
	}
}

// writeSourceEvents keeps the write-direction source registered even
// with interest off so the host still reports HUP on the fd.
func writeSourceEvents(n *Notifier) poller.Event {
	ev := poller.EventHup
	if n.wantWrite {
		ev |= poller.EventWrite
	}
	return ev
}

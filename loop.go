//go:build unix
// +build unix

package ioasync

import (
	"time"

	"github.com/chylli-binary/ioasync/iolog"
)

// Loop is the reactor contract shared by all backends. A Loop is
// single-threaded cooperative: every callback runs on the goroutine
// driving the loop, and callbacks may freely add or remove notifiers,
// change write-interest, enqueue or cancel timers, or call LoopStop;
// such mutations take effect before the next wait. Callbacks must not
// re-enter LoopOnce or LoopForever on the same Loop.
type Loop interface {
	// Add registers a detached root notifier and, recursively, its
	// descendants. It fails if the notifier is already in any loop.
	Add(Member) error

	// Remove is the inverse of Add. Child notifiers are removed
	// through their parent, not directly.
	Remove(Member) error

	// LoopOnce waits up to timeout for any source to become ready,
	// dispatches all ready sources and expired timers, and returns
	// how many fd sources were ready. A negative timeout waits
	// indefinitely. The wait is clamped to the next timer deadline.
	LoopOnce(timeout time.Duration) (int, error)

	// LoopForever iterates until LoopStop clears the sentinel from
	// within a callback.
	LoopForever()
	LoopStop()

	EnqueueTimer(delay time.Duration, code func()) TimerID
	CancelTimer(id TimerID)

	WatchChild(pid int, code ChildCallback) error
	UnwatchChild(pid int)

	Close() error

	notifierWantWriteReady(n *Notifier, want bool) error
	addNested(n *Notifier) error
	removeNested(n *Notifier)
}

// loopBackend is the per-backend surface loopCore drives: installing
// and tearing down OS interest for a notifier's handles, adjusting the
// write mask, and watching the child-exit wake fd.
type loopBackend interface {
	Loop
	installNotifier(n *Notifier) error
	uninstallNotifier(n *Notifier)
	applyWriteInterest(n *Notifier, want bool) error
	installChildWake(fd int) error
	removeChildWake(fd int)
}

// loopCore carries the bookkeeping every backend shares: the ordered
// notifier collection, the timer queue and the child watcher. All
// bookkeeping completes before any user code runs, so an unwound
// callback never leaves the collection half-updated.
type loopCore struct {
	self      loopBackend
	notifiers []*Notifier
	timers    *timerQueue
	watcher   *childWatcher
	looping   bool
}

func (c *loopCore) init(self loopBackend) {
	c.self = self
	c.timers = newTimerQueue()
}

func (c *loopCore) Add(m Member) error {
	n := m.notifierBase()
	if n.memberSet != nil {
		return ErrAlreadyMember
	}
	if n.parent != nil {
		return ErrHasParent
	}
	return c.addNested(n)
}

func (c *loopCore) addNested(n *Notifier) error {
	n.memberSet = c.self
	c.notifiers = append(c.notifiers, n)
	if err := c.self.installNotifier(n); err != nil {
		c.deleteNotifier(n)
		n.memberSet = nil
		return err
	}
	if n.loopAdded != nil {
		n.loopAdded(c.self)
	}
	for _, child := range n.Children() {
		if err := c.addNested(child); err != nil {
			c.removeNested(n)
			return err
		}
	}
	return nil
}

func (c *loopCore) Remove(m Member) error {
	n := m.notifierBase()
	if n.memberSet != Loop(c.self) {
		return ErrNotMember
	}
	if n.parent != nil {
		return ErrHasParent
	}
	c.removeNested(n)
	return nil
}

func (c *loopCore) removeNested(n *Notifier) {
	if n.memberSet != Loop(c.self) {
		return
	}
	for _, child := range n.Children() {
		c.removeNested(child)
	}
	c.self.uninstallNotifier(n)
	c.deleteNotifier(n)
	n.memberSet = nil
	if n.loopRemoved != nil {
		n.loopRemoved(c.self)
	}
}

func (c *loopCore) deleteNotifier(n *Notifier) {
	for i, cand := range c.notifiers {
		if cand == n {
			c.notifiers = append(c.notifiers[:i], c.notifiers[i+1:]...)
			return
		}
	}
}

func (c *loopCore) notifierWantWriteReady(n *Notifier, want bool) error {
	if n.memberSet != Loop(c.self) {
		return ErrNotMember
	}
	return c.self.applyWriteInterest(n, want)
}

func (c *loopCore) EnqueueTimer(delay time.Duration, code func()) TimerID {
	return c.timers.enqueue(delay, code)
}

func (c *loopCore) CancelTimer(id TimerID) {
	c.timers.cancel(id)
}

func (c *loopCore) WatchChild(pid int, code ChildCallback) error {
	if pid == 0 {
		return ErrInvalidPid
	}
	if c.watcher == nil {
		cw, err := newChildWatcher()
		if err != nil {
			return err
		}
		if err := c.self.installChildWake(cw.wakeFd()); err != nil {
			cw.close()
			return err
		}
		c.watcher = cw
	}
	c.watcher.watch(pid, code)
	c.watcher.kick()
	return nil
}

func (c *loopCore) UnwatchChild(pid int) {
	if c.watcher != nil {
		c.watcher.unwatch(pid)
	}
}

// reapChildren runs once per loop iteration, before fd dispatch, so a
// short-lived child's exit is not delayed behind readiness traffic.
func (c *loopCore) reapChildren() {
	if c.watcher != nil {
		c.watcher.reap()
		c.watcher.dispatch()
	}
}

func (c *loopCore) LoopForever() {
	c.looping = true

	var tempDelay time.Duration
	for c.looping {
		if _, err := c.self.LoopOnce(-1); err != nil {
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 500 * time.Millisecond; tempDelay >= max {
				tempDelay = max
			}
			iolog.Errorf("[Loop.LoopOnce]: %s", err.Error())
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
	}
}

func (c *loopCore) LoopStop() {
	c.looping = false
}

// clampToTimers bounds a blocking wait to the next timer deadline.
func (c *loopCore) clampToTimers(timeout time.Duration) time.Duration {
	deadline, ok := c.timers.nextDeadline()
	if !ok {
		return timeout
	}
	until := time.Until(deadline)
	if until < 0 {
		until = 0
	}
	if timeout < 0 || until < timeout {
		return until
	}
	return timeout
}

// shutdown releases everything the core tracks. Handles stay open;
// they belong to the notifiers.
func (c *loopCore) shutdown() {
	for len(c.notifiers) > 0 {
		n := c.notifiers[0]
		for n.parent != nil {
			n = n.parent
		}
		c.removeNested(n)
	}
	if c.watcher != nil {
		c.self.removeChildWake(c.watcher.wakeFd())
		c.watcher.close()
		c.watcher = nil
	}
}

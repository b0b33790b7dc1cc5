//go:build unix
// +build unix

package ioasync

import (
	"golang.org/x/sys/unix"

	"github.com/chylli-binary/ioasync/iolog"
)

// ProcessConfig describes a ProcessWatcher. Pid must be nonzero and
// OnExit is required; it receives the watcher and the raw wait status
// word of the reaped child.
type ProcessConfig struct {
	Pid    int
	OnExit func(w *ProcessWatcher, status int)
}

// ProcessWatcher is a handle-less Notifier watching one child pid.
// Registering it with a loop installs a child-watch; when the child is
// reaped the watcher fires OnExit once and removes itself from its
// parent or loop.
type ProcessWatcher struct {
	Notifier
	pid    int
	onExit func(w *ProcessWatcher, status int)
	fired  bool
}

func NewProcessWatcher(cfg *ProcessConfig) (*ProcessWatcher, error) {
	if cfg.Pid == 0 {
		return nil, ErrInvalidPid
	}
	if cfg.OnExit == nil {
		return nil, ErrMissingOnExit
	}
	w := &ProcessWatcher{
		pid:    cfg.Pid,
		onExit: cfg.OnExit,
	}
	w.loopAdded = w.installWatch
	w.loopRemoved = w.removeWatch
	return w, nil
}

func (w *ProcessWatcher) Pid() int {
	return w.pid
}

func (w *ProcessWatcher) Fired() bool {
	return w.fired
}

// Kill sends sig to the watched pid.
func (w *ProcessWatcher) Kill(sig unix.Signal) error {
	return unix.Kill(w.pid, sig)
}

// SetOnExit swaps the exit callback. While registered, the child-watch
// is re-installed so the new callback is the one that fires.
func (w *ProcessWatcher) SetOnExit(code func(w *ProcessWatcher, status int)) {
	w.onExit = code
	if set := w.memberSet; set != nil {
		w.removeWatch(set)
		w.installWatch(set)
	}
}

func (w *ProcessWatcher) installWatch(l Loop) {
	err := l.WatchChild(w.pid, func(pid, status int) {
		w.childExited(status)
	})
	if err != nil {
		iolog.Errorf("[Loop.WatchChild]: %s", err.Error())
	}
}

func (w *ProcessWatcher) removeWatch(l Loop) {
	l.UnwatchChild(w.pid)
}

func (w *ProcessWatcher) childExited(status int) {
	if w.fired {
		return
	}
	w.fired = true
	w.onExit(w, status)

	// single-shot: leave the tree or the loop
	if w.parent != nil {
		if err := w.parent.RemoveChild(w); err != nil {
			iolog.Errorf("[ProcessWatcher.childExited]: %s", err.Error())
		}
		return
	}
	if set := w.memberSet; set != nil {
		if err := set.Remove(w); err != nil {
			iolog.Errorf("[ProcessWatcher.childExited]: %s", err.Error())
		}
	}
}

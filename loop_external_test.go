//go:build unix
// +build unix

package ioasync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/chylli-binary/ioasync/poller"
)

// fakeHost is a minimal host main loop: fd sources polled with
// poll(2), one-shot timers, single-iteration dispatch. It allows
// several sources per fd, the way glib-style loops do.
type fakeHost struct {
	fdSources []*fakeFdSource
	timers    []*fakeTimer
	adds      int
	removes   int
}

type fakeFdSource struct {
	fd      int
	events  poller.Event
	code    func(poller.Event)
	removed bool
}

type fakeTimer struct {
	deadline time.Time
	code     func()
	removed  bool
}

func (h *fakeHost) AddFDSource(fd int, events poller.Event, code func(poller.Event)) (SourceHandle, error) {
	src := &fakeFdSource{fd: fd, events: events, code: code}
	h.fdSources = append(h.fdSources, src)
	h.adds++
	return src, nil
}

func (h *fakeHost) RemoveSource(handle SourceHandle) error {
	h.removes++
	switch src := handle.(type) {
	case *fakeFdSource:
		src.removed = true
	case *fakeTimer:
		src.removed = true
	}
	return nil
}

func (h *fakeHost) AddTimer(delay time.Duration, code func()) (SourceHandle, error) {
	tm := &fakeTimer{deadline: time.Now().Add(delay), code: code}
	h.timers = append(h.timers, tm)
	return tm, nil
}

func (h *fakeHost) RunOnce(block bool) int {
	h.compact()

	ms := 0
	if block {
		ms = -1
		for _, tm := range h.timers {
			until := int((time.Until(tm.deadline) + time.Millisecond - 1) / time.Millisecond)
			if until < 0 {
				until = 0
			}
			if ms < 0 || until < ms {
				ms = until
			}
		}
	}

	pollfds := make([]unix.PollFd, len(h.fdSources))
	for i, src := range h.fdSources {
		var bits int16 = unix.POLLHUP | unix.POLLERR
		if src.events&poller.EventRead != 0 {
			bits |= unix.POLLIN
		}
		if src.events&poller.EventWrite != 0 {
			bits |= unix.POLLOUT
		}
		pollfds[i] = unix.PollFd{Fd: int32(src.fd), Events: bits}
	}

	n, err := unix.Poll(pollfds, ms)
	if err != nil && err != unix.EINTR {
		return 0
	}

	dispatched := 0
	if n > 0 {
		for i, src := range h.fdSources {
			revents := pollfds[i].Revents
			if revents == 0 || src.removed {
				continue
			}
			var ev poller.Event
			if revents&(unix.POLLIN|unix.POLLPRI) != 0 {
				ev |= poller.EventRead
			}
			if revents&unix.POLLOUT != 0 {
				ev |= poller.EventWrite
			}
			if revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				ev |= poller.EventHup
			}
			if ev&src.events != 0 || ev&poller.EventHup != 0 {
				dispatched++
				src.code(ev)
			}
		}
	}

	now := time.Now()
	for _, tm := range h.timers {
		if !tm.removed && !tm.deadline.After(now) {
			tm.removed = true
			dispatched++
			tm.code()
		}
	}
	h.compact()
	return dispatched
}

func (h *fakeHost) compact() {
	fds := h.fdSources[:0]
	for _, src := range h.fdSources {
		if !src.removed {
			fds = append(fds, src)
		}
	}
	h.fdSources = fds

	timers := h.timers[:0]
	for _, tm := range h.timers {
		if !tm.removed {
			timers = append(timers, tm)
		}
	}
	h.timers = timers
}

func (h *fakeHost) liveFdSources() int {
	n := 0
	for _, src := range h.fdSources {
		if !src.removed {
			n++
		}
	}
	return n
}

func TestExternalLoopSourceLifecycle(t *testing.T) {
	h1, _ := testSocketPair(t)

	host := &fakeHost{}
	l := NewExternalLoop(host)
	defer l.Close()

	n, err := NewNotifier(&NotifierConfig{
		Handle:       h1,
		OnReadReady:  func() {},
		OnWriteReady: func() {},
	})
	require.NoError(t, err)

	require.NoError(t, l.Add(n))
	require.Equal(t, 2, host.liveFdSources()) // one per direction

	// mask changes are remove+add on the write source
	adds, removes := host.adds, host.removes
	require.NoError(t, n.SetWantWriteReady(true))
	require.Equal(t, adds+1, host.adds)
	require.Equal(t, removes+1, host.removes)

	require.NoError(t, l.Remove(n))
	require.Zero(t, host.liveFdSources())
	require.Nil(t, n.MemberOfSet())
}

func TestExternalLoopReadiness(t *testing.T) {
	h1, h2 := testSocketPair(t)

	host := &fakeHost{}
	l := NewExternalLoop(host)
	defer l.Close()

	var readReady, writeReady bool
	n, err := NewNotifier(&NotifierConfig{
		Handle:       h1,
		OnReadReady:  func() { readReady = true },
		OnWriteReady: func() { writeReady = true },
	})
	require.NoError(t, err)
	require.NoError(t, l.Add(n))

	count, err := l.LoopOnce(100 * time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, count)
	require.False(t, readReady)
	require.False(t, writeReady)

	_, err = unix.Write(h2.Fd(), []byte("data\n"))
	require.NoError(t, err)

	count, err = l.LoopOnce(100 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.True(t, readReady)
	require.False(t, writeReady)

	drainFd(t, h1.Fd())
	readReady = false

	require.NoError(t, n.SetWantWriteReady(true))
	count, err = l.LoopOnce(100 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.True(t, writeReady)
}

func TestExternalLoopTimers(t *testing.T) {
	host := &fakeHost{}
	l := NewExternalLoop(host)
	defer l.Close()

	fired := false
	cancelled := false
	l.EnqueueTimer(50*time.Millisecond, func() { fired = true })
	id := l.EnqueueTimer(50*time.Millisecond, func() { cancelled = true })

	removes := host.removes
	l.CancelTimer(id)
	require.Equal(t, removes+1, host.removes)

	_, err := l.LoopOnce(200 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, fired)
	require.False(t, cancelled)

	// cancelling after the fire is a no-op
	l.CancelTimer(id)
}

func TestExternalLoopForeverStop(t *testing.T) {
	host := &fakeHost{}
	l := NewExternalLoop(host)
	defer l.Close()

	l.EnqueueTimer(50*time.Millisecond, func() { l.LoopStop() })

	start := time.Now()
	l.LoopForever()
	require.Less(t, time.Since(start), time.Second)
}

func TestExternalLoopChildExit(t *testing.T) {
	cmd := startChild(t, "exit 7")

	host := &fakeHost{}
	l := NewExternalLoop(host)
	defer l.Close()

	var got int
	w, err := NewProcessWatcher(&ProcessConfig{
		Pid: cmd,
		OnExit: func(w *ProcessWatcher, status int) {
			got = status
			l.LoopStop()
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Add(w))

	failsafe := l.EnqueueTimer(5*time.Second, func() { l.LoopStop() })
	l.LoopForever()
	l.CancelTimer(failsafe)

	require.Equal(t, 7, unix.WaitStatus(got).ExitStatus())
	require.Nil(t, w.MemberOfSet())
}

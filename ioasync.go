//go:build unix
// +build unix

// Package ioasync is an asynchronous I/O event framework: a reactor
// that multiplexes fd readiness, one-shot timers and child-exit
// notifications onto a single cooperative thread, and a family of
// composable notifier types driven by it.
package ioasync

import (
	"errors"
)

var (
	ErrMissingHandle    = errors.New("ioasync: notifier needs a handle or a read/write handle pair")
	ErrConflictHandles  = errors.New("ioasync: handle and read/write handles are mutually exclusive")
	ErrMissingReadReady = errors.New("ioasync: no read-ready callback or handler method")
	ErrNoWriteHandle    = errors.New("ioasync: notifier has no write handle")
	ErrHasParent        = errors.New("ioasync: notifier already has a parent")
	ErrNotChild         = errors.New("ioasync: notifier is not a child of this notifier")
	ErrAlreadyMember    = errors.New("ioasync: notifier is already a member of a loop")
	ErrNotMember        = errors.New("ioasync: notifier is not a member of this loop")
	ErrInvalidPid       = errors.New("ioasync: pid must be nonzero")
	ErrMissingOnExit    = errors.New("ioasync: process watcher needs an OnExit callback")
	ErrStreamClosed     = errors.New("ioasync: stream is closed")

	ErrMissingIncomingData = errors.New("ioasync: stream with a read handle needs an incoming-data consumer")
)

// Member is anything built around a Notifier that can join a Loop or a
// notifier tree. Types embedding Notifier satisfy it automatically.
type Member interface {
	notifierBase() *Notifier
}

// ReadReadyHandler may be implemented by a NotifierConfig.Handler to
// supply the read-ready slot instead of an explicit callback.
type ReadReadyHandler interface {
	OnReadReady()
}

// WriteReadyHandler supplies the write-ready slot, see ReadReadyHandler.
type WriteReadyHandler interface {
	OnWriteReady()
}

// ChildClosedHandler is consulted when a child notifier closes itself
// out of this notifier's subtree.
type ChildClosedHandler interface {
	OnChildClosed(child *Notifier)
}

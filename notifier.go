//go:build unix
// +build unix

package ioasync

import (
	"github.com/chylli-binary/ioasync/iolog"
)

// NotifierConfig describes a Notifier. Either Handle (one
// bidirectional descriptor) or ReadHandle/WriteHandle (distinct
// descriptors, either may be nil) must be supplied. Each readiness
// slot resolves, in order, to the explicit callback, the matching
// method on Handler, or a no-op; a read-ready slot is required.
type NotifierConfig struct {
	Handle      *Handle
	ReadHandle  *Handle
	WriteHandle *Handle

	OnReadReady  func()
	OnWriteReady func()

	WantWriteReady bool

	// Handler, if set, is probed for ReadReadyHandler,
	// WriteReadyHandler and ChildClosedHandler.
	Handler interface{}
}

// Notifier is the base event sink: it owns up to two handles, carries
// the resolved readiness slots, and tracks its place in a notifier
// tree and in a Loop.
type Notifier struct {
	readHandle  *Handle
	writeHandle *Handle
	wantWrite   bool

	onReadReady  func()
	onWriteReady func()
	childClosed  func(child *Notifier)

	// internal lifecycle hooks used by one-shot variants
	loopAdded   func(Loop)
	loopRemoved func(Loop)

	parent    *Notifier
	children  []*Notifier
	memberSet Loop
}

func NewNotifier(cfg *NotifierConfig) (*Notifier, error) {
	n := &Notifier{}
	if err := n.applyConfig(cfg); err != nil {
		return nil, err
	}
	if n.onReadReady == nil {
		return nil, ErrMissingReadReady
	}
	return n, nil
}

func (n *Notifier) applyConfig(cfg *NotifierConfig) error {
	switch {
	case cfg.Handle != nil:
		if cfg.ReadHandle != nil || cfg.WriteHandle != nil {
			return ErrConflictHandles
		}
		n.readHandle = cfg.Handle
		n.writeHandle = cfg.Handle
	case cfg.ReadHandle != nil || cfg.WriteHandle != nil:
		n.readHandle = cfg.ReadHandle
		n.writeHandle = cfg.WriteHandle
	default:
		return ErrMissingHandle
	}

	n.onReadReady = cfg.OnReadReady
	n.onWriteReady = cfg.OnWriteReady
	if h, ok := cfg.Handler.(ReadReadyHandler); ok && n.onReadReady == nil {
		n.onReadReady = h.OnReadReady
	}
	if h, ok := cfg.Handler.(WriteReadyHandler); ok && n.onWriteReady == nil {
		n.onWriteReady = h.OnWriteReady
	}
	if h, ok := cfg.Handler.(ChildClosedHandler); ok {
		n.childClosed = h.OnChildClosed
	}

	if cfg.WantWriteReady {
		if n.writeHandle == nil {
			return ErrNoWriteHandle
		}
		n.wantWrite = true
	}
	return nil
}

func (n *Notifier) notifierBase() *Notifier { return n }

func (n *Notifier) ReadHandle() *Handle { return n.readHandle }

func (n *Notifier) WriteHandle() *Handle { return n.writeHandle }

func (n *Notifier) WantWriteReady() bool { return n.wantWrite }

// SetWantWriteReady records write-interest and, when the notifier is
// in a loop, pushes the new interest mask to it immediately.
func (n *Notifier) SetWantWriteReady(want bool) error {
	if want && n.writeHandle == nil {
		return ErrNoWriteHandle
	}
	n.wantWrite = want
	if n.memberSet != nil {
		return n.memberSet.notifierWantWriteReady(n, want)
	}
	return nil
}

func (n *Notifier) Parent() *Notifier { return n.parent }

func (n *Notifier) Children() []*Notifier {
	children := make([]*Notifier, len(n.children))
	copy(children, n.children)
	return children
}

// MemberOfSet returns the Loop this notifier belongs to, or nil.
func (n *Notifier) MemberOfSet() Loop { return n.memberSet }

// AddChild attaches child under this notifier and, if this notifier is
// in a loop, adds child and its descendants to the same loop.
func (n *Notifier) AddChild(m Member) error {
	child := m.notifierBase()
	if child.parent != nil {
		return ErrHasParent
	}
	if child.memberSet != nil {
		return ErrAlreadyMember
	}
	child.parent = n
	n.children = append(n.children, child)
	if n.memberSet != nil {
		if err := n.memberSet.addNested(child); err != nil {
			n.detachChild(child)
			return err
		}
	}
	return nil
}

// RemoveChild detaches child, removing it from the loop if present.
func (n *Notifier) RemoveChild(m Member) error {
	child := m.notifierBase()
	if child.parent != n {
		return ErrNotChild
	}
	if child.memberSet != nil {
		child.memberSet.removeNested(child)
	}
	n.detachChild(child)
	return nil
}

func (n *Notifier) detachChild(child *Notifier) {
	child.parent = nil
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
}

// HandleClosed tears this notifier out of its parent or loop after an
// unrecoverable read/write failure, notifying the parent if it cares.
func (n *Notifier) HandleClosed() {
	if parent := n.parent; parent != nil {
		if err := parent.RemoveChild(n); err != nil {
			iolog.Errorf("[Notifier.HandleClosed]: %s", err.Error())
		}
		if parent.childClosed != nil {
			parent.childClosed(n)
		}
		return
	}
	if set := n.memberSet; set != nil {
		if err := set.Remove(n); err != nil {
			iolog.Errorf("[Notifier.HandleClosed]: %s", err.Error())
		}
	}
}

func (n *Notifier) dispatchReadReady() {
	if n.onReadReady != nil {
		n.onReadReady()
	}
}

func (n *Notifier) dispatchWriteReady() {
	if n.onWriteReady != nil {
		n.onWriteReady()
	}
}

//go:build unix
// +build unix

package ioasync

import "golang.org/x/sys/unix"

// Handle wraps an OS descriptor. All I/O through a Handle is
// nonblocking; callers see EAGAIN rather than blocking.
type Handle struct {
	fd int
}

func NewHandle(fd int) *Handle {
	return &Handle{fd: fd}
}

func (h *Handle) Fd() int {
	return h.fd
}

func (h *Handle) Read(p []byte) (int, error) {
	n, err := unix.Read(h.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (h *Handle) Write(p []byte) (int, error) {
	n, err := unix.Write(h.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (h *Handle) SetNonblock() error {
	return unix.SetNonblock(h.fd, true)
}

func (h *Handle) Close() error {
	return unix.Close(h.fd)
}

//go:build unix
// +build unix

package util

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func SockAddrToAddr(sa unix.Sockaddr) net.Addr {
	var a net.Addr
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		a = &net.TCPAddr{
			IP:   append([]byte{}, sa.Addr[:]...),
			Port: sa.Port,
		}
	case *unix.SockaddrInet6:
		var zone string
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				zone = ifi.Name
			}
		}
		a = &net.TCPAddr{
			IP:   append([]byte{}, sa.Addr[:]...),
			Port: sa.Port,
			Zone: zone,
		}
	case *unix.SockaddrUnix:
		a = &net.UnixAddr{Net: "unix", Name: sa.Name}
	}
	return a
}

func TemporaryErr(err error) bool {
	errno, ok := err.(syscall.Errno)
	if !ok {
		return false
	}
	return errno.Temporary()
}

// Pipe returns a nonblocking close-on-exec pipe as (read fd, write fd).
func Pipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	if err := prepareFds(p[:]); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

// SocketPair returns a nonblocking close-on-exec AF_UNIX stream pair.
func SocketPair() (int, int, error) {
	p, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, err
	}
	if err := prepareFds(p[:]); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

func prepareFds(fds []int) error {
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			for _, fd := range fds {
				_ = unix.Close(fd)
			}
			return err
		}
		unix.CloseOnExec(fd)
	}
	return nil
}

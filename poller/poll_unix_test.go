//go:build unix
// +build unix

package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/chylli-binary/ioasync/util"
)

func TestPollRegistration(t *testing.T) {
	f1, f2, err := util.SocketPair()
	require.NoError(t, err)
	defer unix.Close(f1)
	defer unix.Close(f2)

	p := NewPoll()
	require.NoError(t, p.Add(f1, EventRead))
	require.ErrorIs(t, p.Add(f1, EventRead), ErrFdExists)
	require.NoError(t, p.Add(f2, EventRead))
	require.Equal(t, 2, p.Len())
	require.ElementsMatch(t, []int{f1, f2}, p.Fds())

	require.NoError(t, p.Del(f1))
	require.ErrorIs(t, p.Del(f1), ErrFdNotExists)
	require.ErrorIs(t, p.Mod(f1, EventWrite), ErrFdNotExists)
	require.ElementsMatch(t, []int{f2}, p.Fds())

	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Add(f2, EventRead), ErrClosed)
}

func TestPollWaitReadiness(t *testing.T) {
	f1, f2, err := util.SocketPair()
	require.NoError(t, err)
	defer unix.Close(f1)
	defer unix.Close(f2)

	p := NewPoll()
	defer p.Close()
	require.NoError(t, p.Add(f1, EventRead))

	ready, err := p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, ready)

	_, err = unix.Write(f2, []byte("x"))
	require.NoError(t, err)

	ready, err = p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, f1, ready[0].Fd)
	require.NotZero(t, ready[0].Events&EventRead)

	// write-interest is only observed once requested
	require.NoError(t, p.Mod(f1, EventRead|EventWrite))
	ready, err = p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.NotZero(t, ready[0].Events&EventWrite)
}

func TestPollWaitHupOnPipe(t *testing.T) {
	r, w, err := util.Pipe()
	require.NoError(t, err)
	defer unix.Close(r)

	p := NewPoll()
	defer p.Close()
	require.NoError(t, p.Add(r, EventRead))

	require.NoError(t, unix.Close(w))

	ready, err := p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.NotZero(t, ready[0].Events&EventHup)
}

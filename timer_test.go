//go:build unix
// +build unix

package ioasync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerQueueFireOrder(t *testing.T) {
	q := newTimerQueue()

	var order []string
	q.enqueue(30*time.Millisecond, func() { order = append(order, "late") })
	q.enqueue(0, func() { order = append(order, "first") })
	q.enqueue(0, func() { order = append(order, "second") })

	fired := q.fireExpired(time.Now())
	require.Equal(t, 2, fired)
	require.Equal(t, []string{"first", "second"}, order)

	fired = q.fireExpired(time.Now().Add(time.Second))
	require.Equal(t, 1, fired)
	require.Equal(t, []string{"first", "second", "late"}, order)
	require.Zero(t, q.pending())
}

func TestTimerQueueCancel(t *testing.T) {
	q := newTimerQueue()

	fired := false
	id := q.enqueue(0, func() { fired = true })
	q.cancel(id)
	require.Zero(t, q.fireExpired(time.Now().Add(time.Second)))
	require.False(t, fired)

	// cancelling after firing is a no-op
	id = q.enqueue(0, func() { fired = true })
	require.Equal(t, 1, q.fireExpired(time.Now().Add(time.Second)))
	require.True(t, fired)
	q.cancel(id)

	// unknown ids are ignored
	q.cancel(TimerID(12345))
}

func TestTimerQueueCancelWithinBatch(t *testing.T) {
	q := newTimerQueue()

	var ids []TimerID
	victimFired := false
	q.enqueue(0, func() { q.cancel(ids[0]) })
	ids = append(ids, q.enqueue(0, func() { victimFired = true }))

	q.fireExpired(time.Now().Add(time.Second))
	require.False(t, victimFired)
}

func TestTimerQueueNextDeadline(t *testing.T) {
	q := newTimerQueue()

	_, ok := q.nextDeadline()
	require.False(t, ok)

	idLate := q.enqueue(time.Hour, func() {})
	idSoon := q.enqueue(time.Minute, func() {})

	deadline, ok := q.nextDeadline()
	require.True(t, ok)
	require.InDelta(t, time.Minute.Seconds(), time.Until(deadline).Seconds(), 1)

	q.cancel(idSoon)
	deadline, ok = q.nextDeadline()
	require.True(t, ok)
	require.InDelta(t, time.Hour.Seconds(), time.Until(deadline).Seconds(), 1)

	q.cancel(idLate)
	_, ok = q.nextDeadline()
	require.False(t, ok)
}

func TestTimerEnqueuedByCallbackWaitsForNextPass(t *testing.T) {
	q := newTimerQueue()

	nestedFired := false
	q.enqueue(0, func() {
		q.enqueue(0, func() { nestedFired = true })
	})

	q.fireExpired(time.Now().Add(time.Second))
	require.False(t, nestedFired)

	q.fireExpired(time.Now().Add(time.Second))
	require.True(t, nestedFired)
}

package stack

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestPendingQueueEnqueueAndFlush(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewPendingQueue(time.Second, clock)
	dest := mustIP(t, "192.168.1.50")

	ok := q.Enqueue(dest, []byte{1, 2, 3})
	require.True(t, ok)
	ok = q.Enqueue(dest, []byte{4, 5, 6})
	require.True(t, ok)

	packets := q.Flush(dest)
	require.Len(t, packets, 2)
	require.Equal(t, []byte{1, 2, 3}, packets[0].Datagram)
	require.Equal(t, []byte{4, 5, 6}, packets[1].Datagram)

	// Flushing again returns nothing; the queue was drained.
	require.Empty(t, q.Flush(dest))
}

func TestPendingQueueTailDrop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewPendingQueue(time.Second, clock)
	dest := mustIP(t, "192.168.1.50")

	for i := 0; i < maxPendingPerDest; i++ {
		require.True(t, q.Enqueue(dest, []byte{byte(i)}))
	}
	require.False(t, q.Enqueue(dest, []byte{0xff}), "queue should tail-drop past capacity")
	require.Len(t, q.Flush(dest), maxPendingPerDest)
}

func TestPendingQueueCleanupExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewPendingQueue(time.Second, clock)
	dest := mustIP(t, "10.1.1.1")

	q.Enqueue(dest, []byte{1})
	q.Enqueue(dest, []byte{2})
	clock.Advance(2 * time.Second)

	dropped := q.Cleanup()
	require.Equal(t, 2, dropped)
	require.Empty(t, q.Flush(dest))
}

func TestPendingQueueCleanupExpiresPerPacketAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewPendingQueue(time.Second, clock)
	dest := mustIP(t, "10.1.1.1")

	q.Enqueue(dest, []byte{1})
	clock.Advance(700 * time.Millisecond)
	q.Enqueue(dest, []byte{2})
	clock.Advance(400 * time.Millisecond) // first packet now 1.1s old, second only 400ms

	dropped := q.Cleanup()
	require.Equal(t, 1, dropped, "only the older packet's own timer should have expired")

	remaining := q.Flush(dest)
	require.Len(t, remaining, 1)
	require.Equal(t, []byte{2}, remaining[0].Datagram)
}

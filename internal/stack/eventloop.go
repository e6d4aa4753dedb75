package stack

import (
	"context"
	"errors"
	"time"

	"github.com/soypat/netstack/internal/device"
)

// DefaultPollTimeout bounds how long each iteration of the event loop
// blocks waiting for an inbound frame before it drains send queues and
// runs table cleanup again.
const DefaultPollTimeout = 100 * time.Millisecond

// DefaultCleanupInterval is how often the ARP table and pending queue are
// swept for expired entries.
const DefaultCleanupInterval = 1 * time.Second

// EventLoopConfig configures [Stack.Run].
type EventLoopConfig struct {
	PollTimeout     time.Duration
	CleanupInterval time.Duration
}

// Run drives the stack's single-threaded event loop: polling the device for
// inbound frames, dispatching them to the protocol handlers, draining
// queued outbound UDP datagrams, and periodically sweeping the ARP table
// and pending-packet queue for expired entries. Run blocks until ctx is
// canceled or the device returns a fatal (non-timeout) error.
func (s *Stack) Run(ctx context.Context, cfg EventLoopConfig) error {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	lastCleanup := time.Now()
	var buf [maxFrameSize]byte
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.dev.NextFrame(buf[:], pollTimeout)
		switch {
		case errors.Is(err, device.ErrTimeout):
			// fall through to periodic work below.
		case err != nil:
			return err
		default:
			if err := s.HandleFrame(buf[:n]); err != nil {
				s.log.Debug("dropped frame", "err", err)
			}
		}

		s.drainSendQueues()

		if time.Since(lastCleanup) >= cleanupInterval {
			evicted := s.Arp.Cleanup()
			dropped := s.Pending.Cleanup()
			if evicted > 0 || dropped > 0 {
				s.log.Debug("cleanup", "arp_evicted", evicted, "pending_dropped", dropped)
			}
			s.Metrics.ArpTableSize(s.Arp.Len())
			lastCleanup = time.Now()
		}
	}
}

package stack

import (
	"sync"
	"time"

	"github.com/soypat/netstack/internal/device"
)

// fakeDevice is an in-memory [device.Device] used by stack tests: SendFrame
// appends to Sent, NextFrame dequeues frames queued via Inject.
type fakeDevice struct {
	mu     sync.Mutex
	hwAddr [6]byte
	Sent   [][]byte
	queue  [][]byte
}

func newFakeDevice(hwAddr [6]byte) *fakeDevice {
	return &fakeDevice{hwAddr: hwAddr}
}

func (d *fakeDevice) SendFrame(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.Sent = append(d.Sent, cp)
	return nil
}

func (d *fakeDevice) NextFrame(buf []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return 0, device.ErrTimeout
	}
	frame := d.queue[0]
	d.queue = d.queue[1:]
	return copy(buf, frame), nil
}

func (d *fakeDevice) Inject(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.queue = append(d.queue, cp)
}

func (d *fakeDevice) HardwareAddr() [6]byte { return d.hwAddr }

func (d *fakeDevice) Close() error { return nil }

// popSent pops the oldest frame SendFrame recorded, if any.
func (d *fakeDevice) popSent() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Sent) == 0 {
		return nil, false
	}
	frame := d.Sent[0]
	d.Sent = d.Sent[1:]
	return frame, true
}

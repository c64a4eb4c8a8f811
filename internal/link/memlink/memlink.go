// Package memlink is an in-memory purifier that implements
// coordinator.DeviceLink. It echoes every accepted write back as a status
// delta the way a real device does, and can drift its sensor readings so
// the service can run without hardware.
package memlink

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

var (
	// ErrNotOpen is returned when the device is used while closed.
	ErrNotOpen = errors.New("memlink: not open")

	// ErrDropped is returned by ReceiveNext after Drop.
	ErrDropped = errors.New("memlink: connection dropped")
)

// DefaultStatus is the status a new simulated AC2729 reports.
func DefaultStatus() coordinator.Status {
	return coordinator.Status{
		"name":      "Simulated",
		"modelid":   "AC2729/10",
		"swversion": "0.2.1",
		"pwr":       "1",
		"mode":      "P",
		"om":        "1",
		"cl":        false,
		"uil":       "1",
		"aqil":      int64(100),
		"ddp":       "0",
		"rhset":     int64(50),
		"func":      "PH",
		"dt":        int64(0),
		"err":       int64(0),
		"pm25":      int64(6),
		"iaql":      int64(1),
		"rh":        int64(45),
		"temp":      int64(21),
		"fltsts0":   int64(212),
		"flttotal0": int64(360),
		"fltsts1":   int64(3410),
		"flttotal1": int64(4800),
		"fltsts2":   int64(2400),
		"flttotal2": int64(4800),
		"rssi":      int64(-55),
	}
}

// Device is a simulated purifier.
type Device struct {
	mu       sync.Mutex
	status   coordinator.Status
	open     bool
	sessions int
	deltas   chan coordinator.Status
	dropped  chan struct{}
	dropErr  error
	openErr  error
	writeErr error
	writes   []coordinator.Control
}

var _ coordinator.DeviceLink = (*Device)(nil)

// New creates a device reporting initial. A nil initial uses DefaultStatus.
func New(initial coordinator.Status) *Device {
	if initial == nil {
		initial = DefaultStatus()
	}
	return &Device{status: initial.Clone()}
}

// Open starts a session and queues the full status as the first delta.
func (d *Device) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.closeLocked()
	d.open = true
	d.sessions++
	d.deltas = make(chan coordinator.Status, 256)
	d.dropped = make(chan struct{})
	d.dropErr = nil
	d.deltas <- d.status.Clone()
	return nil
}

// ReceiveNext returns the next queued delta.
func (d *Device) ReceiveNext(ctx context.Context) (coordinator.Status, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil, ErrNotOpen
	}
	deltas, dropped := d.deltas, d.dropped
	d.mu.Unlock()

	select {
	case delta := <-deltas:
		return delta, nil
	case <-dropped:
		d.mu.Lock()
		err := d.dropErr
		d.mu.Unlock()
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteControl applies the write and echoes it as a delta.
func (d *Device) WriteControl(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrNotOpen
	}
	if d.writeErr != nil {
		return d.writeErr
	}
	d.writes = append(d.writes, coordinator.Control{Key: key, Value: value})
	d.status[key] = value
	d.pushLocked(coordinator.Status{key: value})
	return nil
}

// Close ends the session.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *Device) closeLocked() {
	if !d.open {
		return
	}
	d.open = false
	d.signalDropLocked(ErrNotOpen)
}

func (d *Device) signalDropLocked(err error) {
	select {
	case <-d.dropped:
	default:
		d.dropErr = err
		close(d.dropped)
	}
}

func (d *Device) pushLocked(delta coordinator.Status) {
	select {
	case d.deltas <- delta:
	default:
		// Receiver is far behind; fold into the newest pending delta.
		select {
		case pending := <-d.deltas:
			for k, v := range delta {
				pending[k] = v
			}
			d.deltas <- pending
		default:
		}
	}
}

// Push emits a status delta from the device side.
func (d *Device) Push(delta coordinator.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range delta {
		d.status[k] = v
	}
	if d.open {
		d.pushLocked(delta.Clone())
	}
}

// Drop breaks the current session: ReceiveNext returns ErrDropped.
func (d *Device) Drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		d.signalDropLocked(ErrDropped)
	}
}

// SetOpenError makes subsequent Open calls fail with err (nil clears it).
func (d *Device) SetOpenError(err error) {
	d.mu.Lock()
	d.openErr = err
	d.mu.Unlock()
}

// SetWriteError makes subsequent writes fail with err (nil clears it).
func (d *Device) SetWriteError(err error) {
	d.mu.Lock()
	d.writeErr = err
	d.mu.Unlock()
}

// Writes returns the accepted writes in order.
func (d *Device) Writes() []coordinator.Control {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]coordinator.Control, len(d.writes))
	copy(out, d.writes)
	return out
}

// Status returns a copy of the device-side status.
func (d *Device) Status() coordinator.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status.Clone()
}

// Sessions returns how many times Open has succeeded.
func (d *Device) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// Simulate drifts air-quality readings every interval and wears the
// filters down until ctx is done.
func (d *Device) Simulate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Push(d.drift())
		}
	}
}

func (d *Device) drift() coordinator.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	delta := coordinator.Status{}
	if pm, ok := d.status["pm25"].(int64); ok {
		next := max(pm+int64(rand.IntN(5))-2, 0)
		delta["pm25"] = next
		delta["iaql"] = max(next/6, 1)
	}
	for _, key := range []string{"fltsts0", "fltsts1", "fltsts2"} {
		if v, ok := d.status[key].(int64); ok && v > 0 {
			delta[key] = v - 1
		}
	}
	return delta
}

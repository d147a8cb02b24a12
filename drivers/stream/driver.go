package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/luma/argus/catalog"
	"github.com/luma/argus/hal"
)

// ErrUnknownHandle is returned for control calls naming a channel this
// driver does not serve.
var ErrUnknownHandle = errors.New("This driver does not serve the given sensor handle")

const readChunk = 16 * hal.EventSize

// Driver reads wire-encoded sensor events from any readable descriptor
// (a unix socket or FIFO fed by a sensor bridge or simulator). Records
// for disabled or foreign channels are dropped at decode time; records
// decoded beyond what one ReadEvents call could return are parked in an
// internal queue, which is what HasPendingEvents reports on.
type Driver struct {
	fd int

	mu        sync.Mutex
	enabled   map[catalog.Handle]bool
	intervals map[catalog.Handle]int64
	pending   *queue.Queue

	// partial holds the tail of an event record split across reads.
	partial []byte

	closed bool
}

// New wraps an already-open descriptor. The descriptor is switched to
// non-blocking mode and owned by the driver from here on.
func New(fd int, handles []catalog.Handle) (*Driver, error) {
	if len(handles) == 0 {
		return nil, errors.New("A stream driver needs at least one handle to serve")
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("Failed to make the source descriptor non-blocking: %w", err)
	}

	d := &Driver{
		fd:        fd,
		enabled:   make(map[catalog.Handle]bool, len(handles)),
		intervals: make(map[catalog.Handle]int64, len(handles)),
		pending:   queue.New(),
	}

	for _, h := range handles {
		d.enabled[h] = false
	}

	return d, nil
}

// Open opens a source path (FIFO or file) read-only and wraps it.
func Open(path string, handles []catalog.Handle) (*Driver, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open sensor source %q: %w", path, err)
	}

	d, err := New(fd, handles)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return d, nil
}

func (d *Driver) Fd() int {
	return d.fd
}

func (d *Driver) Enable(h catalog.Handle, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.enabled[h]; !ok {
		return fmt.Errorf("Failed to enable handle %d: %w", h, ErrUnknownHandle)
	}

	d.enabled[h] = enabled

	if !enabled {
		// Drop queued readings for the channel so a later read never
		// returns stale data from before the disable.
		for i := d.pending.Length(); i > 0; i-- {
			ev := d.pending.Remove().(hal.Event)
			if ev.Handle != h {
				d.pending.Add(ev)
			}
		}
	}

	return nil
}

func (d *Driver) SetInterval(h catalog.Handle, ns int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.enabled[h]; !ok {
		return fmt.Errorf("Failed to set interval for handle %d: %w", h, ErrUnknownHandle)
	}

	// Advisory only: the feed decides its own cadence. Recorded so the
	// bridge can be reconciled against it out of band.
	d.intervals[h] = ns

	return nil
}

// Interval returns the last interval recorded for a channel.
func (d *Driver) Interval(h catalog.Handle) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.intervals[h]
}

func (d *Driver) HasPendingEvents() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending.Length() > 0
}

// ReadEvents serves queued events first, then performs one bounded
// non-blocking read of the descriptor, decoding whole records and
// queueing whatever does not fit in out. It never blocks.
func (d *Driver) ReadEvents(out []hal.Event) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for n < len(out) && d.pending.Length() > 0 {
		out[n] = d.pending.Remove().(hal.Event)
		n++
	}

	if n == len(out) {
		return n, nil
	}

	chunk := make([]byte, readChunk)
	nr, err := unix.Read(d.fd, chunk)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return n, nil
		}

		return n, fmt.Errorf("Failed to read sensor source: %w", err)
	}
	if nr <= 0 {
		// Writer side gone or nothing to read; readiness will stop
		// firing on its own.
		return n, nil
	}

	d.partial = append(d.partial, chunk[:nr]...)

	for {
		ev, ok := hal.DecodeEvent(d.partial)
		if !ok {
			break
		}
		d.partial = d.partial[hal.EventSize:]

		if !d.enabled[ev.Handle] {
			continue
		}

		if n < len(out) {
			out[n] = ev
			n++
		} else {
			d.pending.Add(ev)
		}
	}

	return n, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return unix.Close(d.fd)
}

var _ hal.Driver = (*Driver)(nil)

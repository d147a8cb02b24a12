package hal

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/luma/argus/catalog"
)

var (
	// ErrUnsupportedHandle is returned by Activate and SetDelay when no
	// configured driver serves the given handle. No driver is touched.
	ErrUnsupportedHandle = errors.New("No driver is configured for this sensor handle")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("The sensor device has been closed")

	// ErrNoSlots is returned by NewDevice for an empty slot list.
	ErrNoSlots = errors.New("At least one driver slot is required")
)

// Device is the poll aggregator. It owns the configured drivers and
// the wake pipe; the wait set is the drivers' descriptors plus the
// wake pipe's read end, in slot order with the wake descriptor last.
type Device struct {
	slots  []Slot
	fds    []unix.PollFd
	routes routingTable
	wake   *wakePipe

	// pollMu serialises PollEvents against Close. It is never held
	// while a control call runs, only across one PollEvents pass.
	pollMu sync.Mutex

	closeMu sync.Mutex
	stop    chan struct{}

	log *zap.Logger
}

// NewDevice builds the aggregator over a fixed slot list. Drivers are
// constructed by the caller; NewDevice only records their descriptors.
// The only fatal construction failure is the wake pipe: a driver with
// a broken descriptor surfaces later through the wait, not here.
func NewDevice(slots []Slot, log *zap.Logger) (*Device, error) {
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}

	if log == nil {
		log = zap.NewNop()
	}

	routes, err := buildRouting(slots)
	if err != nil {
		return nil, err
	}

	wake, err := newWakePipe()
	if err != nil {
		return nil, fmt.Errorf("Failed to create the wake pipe: %w", err)
	}

	fds := make([]unix.PollFd, len(slots)+1)
	for i, slot := range slots {
		fds[i] = unix.PollFd{Fd: int32(slot.Driver.Fd()), Events: unix.POLLIN}
	}
	fds[len(slots)] = unix.PollFd{Fd: int32(wake.readFd), Events: unix.POLLIN}

	return &Device{
		slots:  append([]Slot(nil), slots...),
		fds:    fds,
		routes: routes,
		wake:   wake,
		stop:   make(chan struct{}),
		log:    log,
	}, nil
}

// Activate enables or disables one logical channel. On a successful
// enable it pokes the wake pipe so a blocked PollEvents picks up the
// newly enabled descriptor promptly. A failed poke is logged and
// swallowed: the next scheduled wait will still see the change.
func (d *Device) Activate(h catalog.Handle, enabled bool) error {
	if !d.isRunning() {
		return ErrClosed
	}

	index, err := d.routes.lookup(h)
	if err != nil {
		return err
	}

	if err := d.slots[index].Driver.Enable(h, enabled); err != nil {
		return err
	}

	if enabled {
		if werr := d.wake.wake(); werr != nil {
			d.log.Error("Failed to send wake message",
				zap.Int32("handle", int32(h)),
				zap.Error(werr))
		}
	}

	return nil
}

// SetDelay sets the sampling interval for one logical channel. No wake
// is needed: the interval changes future event timing, not readiness.
func (d *Device) SetDelay(h catalog.Handle, ns int64) error {
	if !d.isRunning() {
		return ErrClosed
	}

	index, err := d.routes.lookup(h)
	if err != nil {
		return err
	}

	return d.slots[index].Driver.SetInterval(h, ns)
}

// PollEvents drains ready drivers into events and returns how many
// records were written. It blocks only when nothing has been
// accumulated and no driver is ready; once at least one event is in
// hand the wait degrades to a zero-timeout opportunistic check.
//
// A zero-length buffer returns 0 without waiting. On a wait failure
// the error is returned immediately along with whatever was already
// accumulated; the caller should stop polling.
func (d *Device) PollEvents(events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	d.pollMu.Lock()
	defer d.pollMu.Unlock()

	if !d.isRunning() {
		return 0, ErrClosed
	}

	var (
		nbEvents int
		count    = len(events)
		ready    = 0
		first    = true
	)

	for first || (ready != 0 && count != 0) {
		first = false

		// Drain leftovers from the previous wait. A driver stays in the
		// sweep while its readiness flag is set or it reports buffered
		// events beyond what one read returned.
		for i := range d.slots {
			if count == 0 {
				break
			}

			slot := &d.slots[i]
			if d.fds[i].Revents&unix.POLLIN == 0 && !slot.Driver.HasPendingEvents() {
				continue
			}

			nb, err := slot.Driver.ReadEvents(events[nbEvents : nbEvents+count])
			if err != nil {
				return nbEvents, err
			}

			if nb < count {
				// No more data immediately available from this driver.
				d.fds[i].Revents = 0
			}

			count -= nb
			nbEvents += nb
		}

		if count > 0 {
			// We still have room: block for more if we have nothing to
			// return yet, otherwise just peek.
			timeout := -1
			if nbEvents > 0 {
				timeout = 0
			}

			var err error
			ready, err = unix.Poll(d.fds, timeout)
			for err == unix.EINTR {
				ready, err = unix.Poll(d.fds, timeout)
			}
			if err != nil {
				d.log.Error("Multiplexed wait failed", zap.Error(err))
				return nbEvents, err
			}

			if !d.isRunning() {
				return nbEvents, ErrClosed
			}

			wakeFd := &d.fds[len(d.slots)]
			if wakeFd.Revents&unix.POLLIN != 0 {
				msg, derr := d.wake.drain()
				if derr != nil {
					d.log.Error("Failed to read from the wake pipe", zap.Error(derr))
				} else if msg != WakeMarker {
					d.log.Warn("Unknown message on the wake pipe", zap.Uint8("msg", msg))
				}

				// The wake descriptor carries no event payload.
				wakeFd.Revents = 0
			}
		}
	}

	return nbEvents, nil
}

// Close tears the aggregator down: it unblocks a parked PollEvents,
// waits for it to leave, then closes every driver followed by both
// ends of the wake pipe. Close is idempotent and after it returns no
// further operation reaches any driver.
func (d *Device) Close() error {
	d.closeMu.Lock()
	if !d.isRunning() {
		d.closeMu.Unlock()
		return nil
	}
	close(d.stop)
	d.closeMu.Unlock()

	if err := d.wake.wake(); err != nil {
		d.log.Error("Failed to send wake message during close", zap.Error(err))
	}

	// Wait for an in-flight PollEvents before pulling descriptors out
	// from under the wait set.
	d.pollMu.Lock()
	defer d.pollMu.Unlock()

	var err error
	for i := range d.slots {
		err = multierr.Append(err, d.slots[i].Driver.Close())
	}

	return multierr.Append(err, d.wake.close())
}

// isRunning returns true if Close has not been called
func (d *Device) isRunning() bool {
	select {
	case <-d.stop:
		return false

	default:
		return true
	}
}

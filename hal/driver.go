package hal

import (
	"github.com/luma/argus/catalog"
)

// Driver is the capability surface the Device consumes from one
// physical sensor driver. A single driver may serve several logical
// channels (e.g. magnetic field and orientation from one part), which
// is why every control call carries the channel handle.
type Driver interface {
	// Fd returns the readiness-pollable descriptor for this driver.
	// It must stay valid for the driver's lifetime.
	Fd() int

	Enable(h catalog.Handle, enabled bool) error

	// SetInterval sets the sampling interval in nanoseconds for one
	// channel. catalog.DelayEventDriven and catalog.DelayOneShot are
	// accepted as sentinels.
	SetInterval(h catalog.Handle, ns int64) error

	// HasPendingEvents reports whether the driver holds buffered events
	// beyond what the descriptor's readability currently signals.
	HasPendingEvents() bool

	// ReadEvents writes up to len(out) buffered events into out and
	// returns how many were written. It never blocks; zero means
	// nothing is available right now.
	ReadEvents(out []Event) (int, error)

	Close() error
}

// Slot binds one driver to the logical channels it serves. The slot
// list is fixed configuration: the Device's wait set and routing table
// are both built from it at construction and never change.
type Slot struct {
	Name    string
	Driver  Driver
	Handles []catalog.Handle
}

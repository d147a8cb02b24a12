package status

import (
	"github.com/luma/argus/catalog"
	"github.com/luma/argus/hal"
)

// Update is a notification that a sensor channel has a new latest
// reading. Value is the reading's JSON encoding.
type Update struct {
	Handle catalog.Handle
	Value  []byte
}

// Store keeps the latest reading per sensor channel and fans recorded
// readings out to listeners.
type Store interface {
	Record(ev hal.Event) error
	Latest(h catalog.Handle) ([]byte, error)

	// Snapshot returns the whole status document as JSON, keyed by
	// handle.
	Snapshot() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}

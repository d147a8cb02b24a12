package transport

import (
	"github.com/luma/argus/catalog"
	"github.com/luma/argus/status"
	"go.uber.org/zap"
)

// Control is the device-level contract the server dispatches ACTIVATE
// and DELAY commands to. *hal.Device satisfies it.
type Control interface {
	Activate(h catalog.Handle, enabled bool) error
	SetDelay(h catalog.Handle, ns int64) error
}

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Reuseport controls setting SO_REUSEPORT
	// TODO(rolly) Reuseport should default to true
	Reuseport bool

	// Trace will dump packets to stdout. This is only useful in local debugging
	Trace bool

	NumListeners int

	// Control receives ACTIVATE/DELAY commands from clients.
	Control Control

	// Status serves GET commands and feeds the reading broadcast.
	Status status.Store

	Log *zap.Logger
}

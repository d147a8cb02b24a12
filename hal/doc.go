package hal

// This package implements the sensor hardware abstraction layer's poll
// aggregator: a single Device that owns a fixed set of physical sensor
// drivers and multiplexes their event streams behind one blocking
// PollEvents call.
//
// The moving parts are
//
// - `Driver` - the capability surface the Device consumes from each
//              physical driver (descriptor, enable, interval, pending
//              check, bounded non-blocking read).
// - `Device` - the aggregator. It routes activate/set-delay calls to
//              the owning driver and drains ready drivers into a
//              caller-supplied buffer, blocking only when nothing is
//              immediately available.
// - wake pipe - a self-pipe registered in the wait set. Enabling a
//              sensor writes one marker byte to it, which makes a
//              concurrently blocked PollEvents wake up and pick up the
//              newly enabled descriptor instead of sleeping until the
//              next natural readiness event.
//
// PollEvents is meant to be driven from one dedicated delivery
// goroutine; Activate and SetDelay may be called concurrently from a
// control path. The wake pipe is the only synchronisation between the
// two - no lock is held across the blocking wait.

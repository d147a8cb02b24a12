package hal

import (
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// WakeMarker is the single byte written to the wake pipe to interrupt
// a blocking wait. Anything else showing up on the pipe is logged as
// an anomaly and otherwise ignored.
const WakeMarker byte = 'W'

// wakePipe is a self-pipe: the write end is private to the Device, the
// read end sits in the wait set. Writing a byte converts "enabled state
// changed" into "descriptor became readable", which is all a blocked
// multiplexed wait can observe.
type wakePipe struct {
	readFd  int
	writeFd int
}

func newWakePipe() (*wakePipe, error) {
	var fds [2]int

	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}

	// Both ends non-blocking: the writer must never stall a control
	// call and the reader drains opportunistically.
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, err
		}
	}

	return &wakePipe{readFd: fds[0], writeFd: fds[1]}, nil
}

// wake makes the read end readable. If the pipe is already full the
// pending bytes will wake the waiter anyway, so EAGAIN is success.
func (w *wakePipe) wake() error {
	_, err := unix.Write(w.writeFd, []byte{WakeMarker})
	if err == unix.EAGAIN {
		return nil
	}

	return err
}

// drain consumes exactly one byte from the read end and returns it so
// the caller can verify the marker.
func (w *wakePipe) drain() (byte, error) {
	var msg [1]byte

	if _, err := unix.Read(w.readFd, msg[:]); err != nil {
		return 0, err
	}

	return msg[0], nil
}

func (w *wakePipe) close() error {
	return multierr.Append(unix.Close(w.readFd), unix.Close(w.writeFd))
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/argus/hal"
	"github.com/luma/argus/protocol"
	"github.com/luma/argus/status"
)

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	listeners    []*TCPListener

	control Control
	status  status.Store

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, options.NumListeners),
		trace:        options.Trace,
		control:      options.Control,
		status:       options.Status,
		log:          options.Log,
	}
}

func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	for i := 0; i < w.numListeners; i++ {
		w.startListener(ctx, w.addr)
	}

	return nil
}

func (t *TCP) Status() status.Store {
	return t.status
}

func (w *TCP) startListener(ctx context.Context, addr string) {
	w.stopWaiter.Add(1)
	listener := NewTCPListener(
		ctx,
		addr,
		w.control,
		w.status,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)

	w.listeners = append(w.listeners, &listener)

	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			// TODO(rolly) as any of the listeners can fail to listen, but we don't treat this as fatal,
			//             you can end up with less than the required amount of listeners running
			w.log.Error("Failed to listen", zap.Error(err))
		}
	}()
}

// Close immediately closes all active listeners and connections.
func (w *TCP) Close() error {
	w.log.Info("Stopping TCP server")
	w.cancel()

	// Tell listeners to stop
	for _, listener := range w.listeners {
		listener.Close()
	}

	w.stopWaiter.Wait()
	w.log.Info("Listeners stopped")

	return nil
}

type TCPListener struct {
	ctx context.Context

	addr string
	log  *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}

	control Control
	status  status.Store
}

func NewTCPListener(
	ctx context.Context,
	addr string,
	control Control,
	store status.Store,
	log *zap.Logger,
) TCPListener {
	return TCPListener{
		ctx:         ctx,
		activeConns: make(map[*TCPConn]struct{}),
		addr:        addr,
		control:     control,
		status:      store,
		log:         log,
	}
}

func (t *TCPListener) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Close active connections
	for conn := range t.activeConns {
		conn.Close()
		delete(t.activeConns, conn)
	}

	return nil
}

func (t *TCPListener) Listen() error {
	listener, err := reuseport.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	defer listener.Close()

	var (
		loopWaiter sync.WaitGroup
	)

	go func() {
		<-t.ctx.Done()

		t.log.Info("Draining reader/writer loops")
		loopWaiter.Wait()

		t.log.Info("Closing listener")
		if err := listener.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	// Push new sensor readings to every connected client
	go func() {
		for update := range t.status.ListenToUpdates() {
			// TODO(rolly) deal with BroadcastReading error return
			t.BroadcastReading(update)
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			t.log.Info("Stopped accepting new connections")
			t.log.Info("Waiting for Read/Write loops to stop")
			loopWaiter.Wait()

			t.log.Info("Listener stopped")
			return nil

		default:
			conn, err := listener.Accept()
			if err != nil {
				netOpError := new(net.OpError)

				if errors.As(err, &netOpError) && netOpError.Unwrap().Error() == "use of closed network connection" {
					// The connection was closed while we were waiting for new connections
					// that's fine.
					return nil
				}

				// TODO(rolly) can we recover from some classes of err?
				return err
			}

			loopWaiter.Add(1)
			tcpConn := NewTCPConn(t.ctx, conn.(*net.TCPConn), t.control, t.status, t.log.Named("conn"))

			t.addConn(tcpConn)

			go func() {
				defer loopWaiter.Done()
				tcpConn.Start()

				// The connection is done with: stop broadcasting to it
				// and release its descriptor.
				t.removeConn(tcpConn)

				if err := tcpConn.Close(); err != nil {
					t.log.Warn("Connection did not close cleanly", zap.Error(err))
				}
			}()
		}
	}
}

// BroadcastReading pushes one reading update to every active client.
func (t *TCPListener) BroadcastReading(update *status.Update) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn := range t.activeConns {
		if uerr := conn.WriteReading(update); uerr != nil {
			err = multierr.Append(err, uerr)
		}
	}

	return err
}

func (t *TCPListener) addConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[conn] = struct{}{}
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	conn    *net.TCPConn
	control Control
	status  status.Store

	writeQueue chan []byte

	closeMu sync.Mutex
	closed  bool

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn *net.TCPConn,
	control Control,
	store status.Store,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		control:    control,
		status:     store,
		writeQueue: make(chan []byte, 127),
		log:        log,
	}
}

func (t *TCPConn) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	if t.closed {
		// already stopped
		return nil
	}
	t.closed = true

	t.cancel()

	// Closing the descriptor unblocks a read loop parked in a blocking
	// read; only then can we wait the loops out.
	t.conn.Close()
	t.loopWaiter.Wait()

	// Once close is called, the writeQueue can no longer be used
	// We need to wait until the read/write loops have exited before
	// closing this channel.
	close(t.writeQueue)

	return nil
}

func (t *TCPConn) Start() {
	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()

		// Once reads stop there is nothing left for the write loop to
		// respond to.
		t.cancel()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		// Stop reading, but allow writes to drain
		err := t.conn.CloseRead()
		if err != nil && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			log.Warn("Failed to close reads on connection cleanly",
				zap.Error(err))
		}

		log.Info("Listener read loop exited")
	}()

	for {
		select {
		case <-t.ctx.Done():
			log.Info("Context cancelled, exiting...")
			return

		default:
			// TODO(rolly) probably want to SetDeadline on the reads...
			req, err := protocol.ReadRequest(t.conn)
			if err != nil {
				if errors.Is(err, io.EOF) {
					log.Info("Client hung up, exiting...")
					return
				}

				log.Warn("Failed to read client request", zap.Error(err))
				continue
			}

			switch c := req.(type) {
			case *protocol.PingRequest:
				if err = protocol.WriteString(t, req.GetRequestID(), "PONG"); err != nil {
					log.Warn("Failed to respond to PING",
						zap.String("requestID", req.GetRequestID().String()))
					continue
				}

			case *protocol.QuitRequest:
				if err = protocol.WriteOk(t, req.GetRequestID()); err != nil {
					log.Warn("Failed to acknowledge QUIT",
						zap.String("requestID", req.GetRequestID().String()))
				}

				log.Info("Client QUIT, exiting...")

				return

			case *protocol.ActivateRequest:
				if aerr := t.control.Activate(c.Handle, c.Enabled); aerr != nil {
					log.Warn("Failed to activate sensor",
						zap.Int32("handle", int32(c.Handle)),
						zap.Bool("enabled", c.Enabled),
						zap.Error(aerr))

					if werr := protocol.WriteError(t, req.GetRequestID(), aerr.Error()); werr != nil {
						log.Warn("Failed to report activate error",
							zap.String("requestID", req.GetRequestID().String()))
					}
					continue
				}

				if err = protocol.WriteOk(t, req.GetRequestID()); err != nil {
					log.Warn("Failed to acknowledge ACTIVATE",
						zap.String("requestID", req.GetRequestID().String()))
				}

			case *protocol.DelayRequest:
				if derr := t.control.SetDelay(c.Handle, c.DelayNs); derr != nil {
					log.Warn("Failed to set sensor delay",
						zap.Int32("handle", int32(c.Handle)),
						zap.Int64("delayNs", c.DelayNs),
						zap.Error(derr))

					if werr := protocol.WriteError(t, req.GetRequestID(), derr.Error()); werr != nil {
						log.Warn("Failed to report delay error",
							zap.String("requestID", req.GetRequestID().String()))
					}
					continue
				}

				if err = protocol.WriteOk(t, req.GetRequestID()); err != nil {
					log.Warn("Failed to acknowledge DELAY",
						zap.String("requestID", req.GetRequestID().String()))
				}

			case *protocol.GetRequest:
				value, gerr := t.status.Latest(c.Handle)
				if gerr != nil {
					log.Warn("Failed to get latest reading",
						zap.Int32("handle", int32(c.Handle)),
						zap.Error(gerr))
					continue
				}

				if value == nil {
					// No reading recorded for this channel yet
					value = []byte("null")
				}

				if err := protocol.WriteLines(t, req.GetRequestID(), protocol.PrefixGet, value); err != nil {
					log.Warn("Failed to reply to get",
						zap.Int32("handle", int32(c.Handle)),
						zap.Error(err))
					continue
				}
			}
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer func() {
		err := t.conn.CloseWrite()
		if err != nil && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			log.Warn("Failed to close writes on connection cleanly",
				zap.Error(err))
		}

		log.Info("Listener write loop exited")
	}()

	for {
		select {
		case <-t.ctx.Done():
			// Flush responses the read loop queued before it stopped,
			// e.g. the acknowledgement of a QUIT.
			for {
				select {
				case data := <-t.writeQueue:
					if data == nil {
						return
					}

					if _, err := t.conn.Write(data); err != nil {
						t.log.Error("Failed to flush write queue",
							zap.Error(err))
						return
					}

				default:
					return
				}
			}

		// These are responses from client requests handled by the read loop
		case data := <-t.writeQueue:
			if data == nil {
				// Our read loop has terminated, we should too
				log.Info("Write loop terminating as write queue has closed")
				return
			}

			if _, err := t.conn.Write(data); err != nil {
				t.log.Error("Failed to write from write queue",
					zap.String("data", string(data)),
					zap.Error(err))
				continue
			}
		}
	}
}

// Write queues data for the write loop to write into the connection.
func (t *TCPConn) Write(data []byte) (int, error) {
	if t.isRunning() {
		t.writeQueue <- data
	}

	return 0, nil
}

// WriteReading pushes one reading update down this connection.
func (t *TCPConn) WriteReading(update *status.Update) error {
	if err := protocol.WriteUpdate(t, update.Handle, update.Value); err != nil {
		return fmt.Errorf("Failed to push reading for handle %d: %w", update.Handle, err)
	}

	return nil
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}

var _ Control = (*hal.Device)(nil)

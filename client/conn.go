package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/argus/catalog"
	"github.com/luma/argus/protocol"
)

// Reading is a sensor update pushed by the server. Value is the
// reading's JSON encoding.
type Reading struct {
	Handle catalog.Handle
	Value  []byte
}

type Conn struct {
	ctx context.Context

	conn *net.TCPConn

	readingChan chan *Reading

	respMu    sync.RWMutex
	respChans map[protocol.RequestID]chan *protocol.Response

	idMu      sync.Mutex
	requestId uint32

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	return &Conn{
		log:         log,
		readingChan: make(chan *Reading, 255),
		respChans:   make(map[protocol.RequestID]chan *protocol.Response),
	}
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	c.ctx = ctx

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	c.conn = conn.(*net.TCPConn)

	go c.readLoop()

	return nil
}

func (c *Conn) Disconnect() error {
	// TODO(rolly) mark us as disconnected and have all methods that make command requests return disconnected errors

	return c.conn.Close()
}

// ReadingChan delivers readings pushed by the server.
func (c *Conn) ReadingChan() <-chan *Reading {
	return c.readingChan
}

func (c *Conn) Quit(ctx context.Context) error {
	reqID, respChan := c.createResponseChan()
	defer c.destroyResponseChan(reqID)

	err := protocol.WriteString(c.conn, reqID, "QUIT")
	if err != nil {
		return err
	}

	select {
	case resp := <-respChan:
		return resp.ErrorOrNil()

	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Ping(ctx context.Context) error {
	reqID, respChan := c.createResponseChan()
	defer c.destroyResponseChan(reqID)

	err := protocol.WriteString(c.conn, reqID, "PING")
	if err != nil {
		return err
	}

	select {
	case resp := <-respChan:
		return resp.ErrorOrNil()

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Activate enables or disables a logical sensor channel.
func (c *Conn) Activate(ctx context.Context, handle catalog.Handle, enabled bool) error {
	on := "0"
	if enabled {
		on = "1"
	}

	reqID, respChan := c.createResponseChan()
	defer c.destroyResponseChan(reqID)

	cmd := fmt.Sprintf("ACTIVATE %d %s", handle, on)
	if err := protocol.WriteString(c.conn, reqID, cmd); err != nil {
		return err
	}

	select {
	case resp := <-respChan:
		return resp.ErrorOrNil()

	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetDelay sets the sampling interval of a channel in nanoseconds.
func (c *Conn) SetDelay(ctx context.Context, handle catalog.Handle, ns int64) error {
	reqID, respChan := c.createResponseChan()
	defer c.destroyResponseChan(reqID)

	cmd := fmt.Sprintf("DELAY %d %d", handle, ns)
	if err := protocol.WriteString(c.conn, reqID, cmd); err != nil {
		return err
	}

	select {
	case resp := <-respChan:
		return resp.ErrorOrNil()

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest fetches the latest reading of a channel as JSON. It returns
// "null" if the channel has not produced a reading yet.
func (c *Conn) Latest(ctx context.Context, handle catalog.Handle) ([]byte, error) {
	reqID, respChan := c.createResponseChan()
	defer c.destroyResponseChan(reqID)

	if err := protocol.WriteString(c.conn, reqID, "GET "+strconv.Itoa(int(handle))); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if err := resp.ErrorOrNil(); err != nil {
			return nil, err
		}
		return resp.Value, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")

	for {
		select {
		case <-c.ctx.Done():
			log.Info("Context cancelled, exiting...")
			return

		default:
			// TODO(rolly) probably want to SetDeadline on the reads...

			resp, err := protocol.ReadResponse(c.conn)
			if err != nil {
				log.Warn("Failed to read server response", zap.Error(err))
				continue
			}

			if resp.Type == protocol.RespUpdate {
				// Handle pushed sensor readings
				c.readingChan <- &Reading{
					Handle: resp.Handle,
					Value:  resp.Value,
				}
				continue
			}

			// Handle responses to our requests
			c.sendToResponseChan(resp.RequestID, resp)
		}
	}
}

func (c *Conn) createResponseChan() (protocol.RequestID, <-chan *protocol.Response) {
	reqID := c.getNextRequestID()
	respChan := make(chan *protocol.Response, 1)

	c.respMu.Lock()
	c.respChans[reqID] = respChan
	c.respMu.Unlock()

	return reqID, respChan
}

func (c *Conn) sendToResponseChan(reqID protocol.RequestID, resp *protocol.Response) {
	c.respMu.Lock()
	respChan, ok := c.respChans[reqID]
	c.respMu.Unlock()

	if !ok {
		return
	}

	respChan <- resp
	c.destroyResponseChan(reqID)
}

func (c *Conn) destroyResponseChan(reqID protocol.RequestID) {
	c.respMu.Lock()
	respChan, ok := c.respChans[reqID]
	if ok {
		close(respChan)
		delete(c.respChans, reqID)
	}
	c.respMu.Unlock()
}

func (c *Conn) getNextRequestID() protocol.RequestID {
	var requestID uint32

	c.idMu.Lock()
	if c.requestId < 0xFFFF {
		c.requestId += 1
	} else {
		// Wrap around instead of overflowing
		c.requestId = 0
	}

	requestID = c.requestId
	c.idMu.Unlock()

	// The ID rides inside a line-delimited protocol, so none of its
	// bytes may be '\r' or '\n'. Four hex digits keep it printable.
	var reqID protocol.RequestID
	hex.Encode(reqID[:], []byte{byte(requestID >> 8), byte(requestID)})
	return reqID
}

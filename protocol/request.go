package protocol

import "github.com/luma/argus/catalog"

type RequestID [4]byte

func (r RequestID) String() string {
	return string(r[:])
}

type Request interface {
	GetRequestID() RequestID
	GetCommand() Command
}

type QuitRequest struct {
	requestID RequestID
}

func (q *QuitRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *QuitRequest) GetCommand() Command {
	return QUIT
}

type PingRequest struct {
	requestID RequestID
}

func (q *PingRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *PingRequest) GetCommand() Command {
	return PING
}

type ActivateRequest struct {
	requestID RequestID
	Handle    catalog.Handle
	Enabled   bool
}

func (q *ActivateRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *ActivateRequest) GetCommand() Command {
	return ACTIVATE
}

type DelayRequest struct {
	requestID RequestID
	Handle    catalog.Handle
	DelayNs   int64
}

func (q *DelayRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *DelayRequest) GetCommand() Command {
	return DELAY
}

type GetRequest struct {
	requestID RequestID
	Handle    catalog.Handle
}

func (q *GetRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *GetRequest) GetCommand() Command {
	return GET
}

var _ Request = (*QuitRequest)(nil)
var _ Request = (*PingRequest)(nil)
var _ Request = (*ActivateRequest)(nil)
var _ Request = (*DelayRequest)(nil)
var _ Request = (*GetRequest)(nil)

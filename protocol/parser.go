package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/luma/argus/catalog"
)

var (
	ErrUnknownCommand          = errors.New("Unknown command could not be parsed")
	ErrRequestTooShort         = errors.New("Request is malformed, it appears to be too short")
	ErrRequestMissingSpace     = errors.New("Command is malformed, it appears to be missing a space before its arguments")
	ErrBadHandle               = errors.New("Command is malformed, the sensor handle is not a decimal integer")
	ErrBadArgument             = errors.New("Command is malformed, an argument could not be parsed")
	ErrResponseMissingErrSpace = errors.New("Err command response is malformed, it appears to be missing a space between ERR and the error messsage")

	PrefixQuit     = []byte("QUIT")
	PrefixPing     = []byte("PING")
	PrefixActivate = []byte("ACTIVATE")
	PrefixDelay    = []byte("DELAY")
	PrefixGet      = []byte("GET")
	PrefixPong     = []byte("PONG")
	PrefixOk       = []byte("OK")
	PrefixErr      = []byte("ERR")

	// PrefixUpdate starts the first line of every reading update pushed
	// by the server
	PrefixUpdate = []byte("*")
)

// ReadRequest reads bytes from the provided Reader and attempts to parse them
// as an Argus request command.
//
// To avoid denial of service attacks, the provided Reader should be an
// io.LimitReader or similar to bound the size of requests.
func ReadRequest(data io.Reader) (req Request, err error) {
	r := bufio.NewReader(data)

	rawReq, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if len(rawReq) < 9 {
		return nil, ErrRequestTooShort
	}

	var requestID RequestID
	copy(requestID[:], rawReq[:4])

	// Strip off the request id and the final '\n'
	rawCommand := RemoveTrailingCR(rawReq[4 : len(rawReq)-1])

	switch {
	case bytes.HasPrefix(rawCommand, PrefixQuit):
		return &QuitRequest{requestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixPing):
		return &PingRequest{requestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixActivate):
		args, err := commandArgs(rawCommand, len(PrefixActivate), 2)
		if err != nil {
			return nil, err
		}

		handle, err := parseHandle(args[0])
		if err != nil {
			return nil, err
		}

		var enabled bool
		switch string(args[1]) {
		case "0":
			enabled = false
		case "1":
			enabled = true
		default:
			return nil, fmt.Errorf("Failed to parse '%s': %w",
				string(rawCommand), ErrBadArgument)
		}

		return &ActivateRequest{requestID: requestID, Handle: handle, Enabled: enabled}, nil

	case bytes.HasPrefix(rawCommand, PrefixDelay):
		args, err := commandArgs(rawCommand, len(PrefixDelay), 2)
		if err != nil {
			return nil, err
		}

		handle, err := parseHandle(args[0])
		if err != nil {
			return nil, err
		}

		ns, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Failed to parse '%s': %w",
				string(rawCommand), ErrBadArgument)
		}

		return &DelayRequest{requestID: requestID, Handle: handle, DelayNs: ns}, nil

	case bytes.HasPrefix(rawCommand, PrefixGet):
		args, err := commandArgs(rawCommand, len(PrefixGet), 1)
		if err != nil {
			return nil, err
		}

		handle, err := parseHandle(args[0])
		if err != nil {
			return nil, err
		}

		return &GetRequest{requestID: requestID, Handle: handle}, nil

	default:
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrUnknownCommand)
	}
}

// ReadResponse reads bytes from the provided Reader and attempts to parse them
// as an Argus response.
//
// To avoid denial of service attacks, the provided Reader should be an
// io.LimitReader or similar to bound the size of responses.
func ReadResponse(data io.Reader) (resp *Response, err error) {
	r := bufio.NewReader(data)

	rawResp, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if rawResp[0] == PrefixUpdate[0] {
		// This is a reading pushed from the server, not a response to
		// a client request.
		rawHandle := RemoveTrailingCR(rawResp[1 : len(rawResp)-1])

		handle, err := parseHandle(rawHandle)
		if err != nil {
			return nil, err
		}

		value, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		return &Response{
			Type:   RespUpdate,
			Handle: handle,
			Value:  RemoveTrailingCR(value[:len(value)-1]),
		}, nil
	}

	if len(rawResp) < 7 {
		return nil, ErrRequestTooShort
	}

	var requestID RequestID
	copy(requestID[:], rawResp[:4])

	// Strip off the request id and the final '\n'
	rawCommand := RemoveTrailingCR(rawResp[4 : len(rawResp)-1])

	switch {
	case bytes.HasPrefix(rawCommand, PrefixPong):
		return &Response{Type: RespPong, RequestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixOk):
		return &Response{Type: RespOk, RequestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixGet):
		value, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		return &Response{
			Type:      RespGet,
			RequestID: requestID,
			Value:     RemoveTrailingCR(value[:len(value)-1]),
		}, nil

	case bytes.HasPrefix(rawCommand, PrefixErr):
		// <reqID>ERR <errMessage>\r\n

		if len(rawCommand) < 4 || rawCommand[3] != ' ' {
			// There should be a space delimiting the ERR from it's message
			return nil, fmt.Errorf("Failed to parse '%s': %w",
				string(rawCommand), ErrResponseMissingErrSpace)
		}

		return &Response{
			Type:      RespErr,
			RequestID: requestID,
			Args: []interface{}{
				errors.New(string(rawCommand[4:])),
			},
		}, nil

	default:
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrUnknownCommand)
	}
}

func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		// Remove the optional trailing \r
		return data[:len(data)-1]
	}

	return data
}

// commandArgs splits the space-separated arguments following a command
// prefix and checks the count.
func commandArgs(rawCommand []byte, prefixLen, want int) ([][]byte, error) {
	if len(rawCommand) <= prefixLen || rawCommand[prefixLen] != ' ' {
		// There should be a space delimiting the command from its arguments
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrRequestMissingSpace)
	}

	args := bytes.Split(rawCommand[prefixLen+1:], []byte(" "))
	if len(args) != want {
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrBadArgument)
	}

	return args, nil
}

func parseHandle(raw []byte) (catalog.Handle, error) {
	h, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("Failed to parse handle '%s': %w", string(raw), ErrBadHandle)
	}

	return catalog.Handle(h), nil
}

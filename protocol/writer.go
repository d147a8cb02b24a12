package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/luma/argus/catalog"
)

var (
	OkTerminal = []byte("OK\r\n")
	Terminal   = []byte("\r\n")
)

func WriteOk(w io.Writer, requestID RequestID) error {
	_, err := w.Write(PrependRequestID(OkTerminal, requestID))
	return err
}

func WriteString(w io.Writer, requestID RequestID, s string) error {
	b := append([]byte(s), '\r', '\n')
	_, err := w.Write(PrependRequestID(b, requestID))
	return err
}

func WriteLines(w io.Writer, requestID RequestID, ss ...[]byte) error {
	if len(ss) == 0 {
		return nil
	}

	lines := make([][]byte, 0, len(ss))
	lines = append(lines, PrependRequestID(ss[0], requestID))
	lines = append(lines, ss[1:]...)

	b := bytes.Join(lines, Terminal)
	b = append(b, '\r', '\n')

	_, err := w.Write(b)
	return err
}

func WriteError(w io.Writer, requestID RequestID, errMsg string) error {
	b := []byte(fmt.Sprintf("ERR %s\r\n", errMsg))
	_, err := w.Write(PrependRequestID(b, requestID))
	return err
}

// WriteUpdate writes a pushed reading update: no request ID, a `*`
// prefix, the handle on the first line and the reading on the second.
func WriteUpdate(w io.Writer, handle catalog.Handle, value []byte) error {
	b := append([]byte{}, PrefixUpdate...)
	b = strconv.AppendInt(b, int64(handle), 10)
	b = append(b, Terminal...)
	b = append(b, value...)
	b = append(b, Terminal...)

	_, err := w.Write(b)
	return err
}

func PrependRequestID(data []byte, requestID RequestID) []byte {
	return append(requestID[:], data...)
}

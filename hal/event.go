package hal

import (
	"encoding/binary"
	"math"

	"github.com/luma/argus/catalog"
)

// EventSize is the wire size of one encoded Event.
const EventSize = 40

// Event is one sensor reading. The aggregator treats it as an opaque
// fixed-size record; only the producing driver and the consumer know
// what the values mean for a given sensor type.
type Event struct {
	Handle    catalog.Handle
	Type      catalog.Type
	Timestamp int64
	Values    [6]float32
}

// AppendEvent appends the little-endian wire encoding of ev to dst.
func AppendEvent(dst []byte, ev Event) []byte {
	var buf [EventSize]byte

	binary.LittleEndian.PutUint32(buf[0:], uint32(ev.Handle))
	binary.LittleEndian.PutUint32(buf[4:], uint32(ev.Type))
	binary.LittleEndian.PutUint64(buf[8:], uint64(ev.Timestamp))

	for i, v := range ev.Values {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(v))
	}

	return append(dst, buf[:]...)
}

// DecodeEvent decodes one Event from the front of data. It returns
// false if data holds less than EventSize bytes.
func DecodeEvent(data []byte) (Event, bool) {
	if len(data) < EventSize {
		return Event{}, false
	}

	ev := Event{
		Handle:    catalog.Handle(binary.LittleEndian.Uint32(data[0:])),
		Type:      catalog.Type(binary.LittleEndian.Uint32(data[4:])),
		Timestamp: int64(binary.LittleEndian.Uint64(data[8:])),
	}

	for i := range ev.Values {
		ev.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[16+i*4:]))
	}

	return ev, true
}

package status

import (
	"strconv"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/argus/catalog"
	"github.com/luma/argus/hal"
)

// InmemoryStore keeps the status document as a single JSON blob keyed
// by handle, e.g. {"5":{"handle":5,"type":5,"timestamp":...,"values":[...]}}.
type InmemoryStore struct {
	mu          sync.Mutex
	values      []byte
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte("{}"),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

func (i *InmemoryStore) Close() error {
	if i.isRunning() {
		close(i.stop)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}
	i.updateChans = nil

	return nil
}

func (i *InmemoryStore) Record(ev hal.Event) error {
	reading, err := encodeReading(ev)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values, err = sjson.SetRawBytes(i.values, handleKey(ev.Handle), reading)
	if err != nil {
		return err
	}

	if i.isRunning() {
		for _, updateChan := range i.updateChans {
			updateChan <- &Update{
				Handle: ev.Handle,
				Value:  reading,
			}
		}
	}

	return nil
}

func (i *InmemoryStore) Latest(h catalog.Handle) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	result := gjson.GetBytes(i.values, handleKey(h))
	if !result.Exists() {
		return nil, nil
	}

	return []byte(result.Raw), nil
}

func (i *InmemoryStore) Snapshot() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]byte, len(i.values))
	copy(out, i.values)

	return out, nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, 255)
	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

func handleKey(h catalog.Handle) string {
	return strconv.Itoa(int(h))
}

func encodeReading(ev hal.Event) ([]byte, error) {
	var (
		data = []byte("{}")
		err  error
	)

	for key, value := range map[string]interface{}{
		"handle":    int64(ev.Handle),
		"type":      int64(ev.Type),
		"timestamp": ev.Timestamp,
	} {
		data, err = sjson.SetBytes(data, key, value)
		if err != nil {
			return nil, err
		}
	}

	values := []byte("[")
	for vi, v := range ev.Values {
		if vi > 0 {
			values = append(values, ',')
		}
		values = strconv.AppendFloat(values, float64(v), 'g', -1, 32)
	}
	values = append(values, ']')

	return sjson.SetRawBytes(data, "values", values)
}

var _ Store = (*InmemoryStore)(nil)

package hal

import (
	"fmt"

	"github.com/luma/argus/catalog"
)

// routingTable maps a logical channel handle to the slot index of the
// driver that owns it. Handles are small integers, so the table is a
// dense array and lookup is a single index, not a hash scan.
type routingTable []int

func buildRouting(slots []Slot) (routingTable, error) {
	max := catalog.Handle(-1)

	for _, slot := range slots {
		for _, h := range slot.Handles {
			if h < 0 {
				return nil, fmt.Errorf("Slot %q declares negative handle %d", slot.Name, h)
			}
			if h > max {
				max = h
			}
		}
	}

	table := make(routingTable, max+1)
	for i := range table {
		table[i] = -1
	}

	for index, slot := range slots {
		for _, h := range slot.Handles {
			if table[h] != -1 {
				return nil, fmt.Errorf("Handle %d is claimed by both slot %q and slot %q",
					h, slots[table[h]].Name, slot.Name)
			}

			table[h] = index
		}
	}

	return table, nil
}

// lookup resolves a handle to its slot index. An unconfigured handle is
// an error, never a default slot.
func (r routingTable) lookup(h catalog.Handle) (int, error) {
	if h < 0 || int(h) >= len(r) || r[h] == -1 {
		return -1, ErrUnsupportedHandle
	}

	return r[h], nil
}

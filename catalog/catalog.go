package catalog

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Type tags mirror the platform sensor type numbering. A sensor's
// default handle is derived from its type, so the two sets of
// constants line up.
type Type int32

const (
	TypeAccelerometer Type = 1
	TypeMagneticField Type = 2
	TypeOrientation   Type = 3
	TypeGyroscope     Type = 4
	TypeLight         Type = 5
	TypePressure      Type = 6
	TypeTemperature   Type = 7
	TypeProximity     Type = 8
)

// Handle identifies a logical sensor channel. It is opaque to everything
// except the routing table, which maps it to the driver that owns it.
type Handle int32

const HandleBase Handle = 0

const (
	HandleAccelerometer = HandleBase + Handle(TypeAccelerometer)
	HandleMagneticField = HandleBase + Handle(TypeMagneticField)
	HandleOrientation   = HandleBase + Handle(TypeOrientation)
	HandleGyroscope     = HandleBase + Handle(TypeGyroscope)
	HandleLight         = HandleBase + Handle(TypeLight)
	HandleTemperature   = HandleBase + Handle(TypeTemperature)
	HandleProximity     = HandleBase + Handle(TypeProximity)
)

// Sampling interval sentinels. A MinDelayNs of DelayEventDriven means the
// sensor only reports on change; DelayOneShot means it must be triggered
// manually and never reports periodically.
const (
	DelayEventDriven int64 = 0
	DelayOneShot     int64 = 0x7FFFFFFF
)

var ErrInvalidCatalog = errors.New("Catalog JSON is malformed")

// Sensor describes one logical sensor channel. This is pure static
// configuration: the aggregator never reads anything here except the
// Handle/Slot pair it derives its routing table from.
type Sensor struct {
	Name       string
	Vendor     string
	Version    int
	Handle     Handle
	Type       Type
	MaxRange   float64
	Resolution float64
	Power      float64
	MinDelayNs int64

	// Slot names the physical driver that serves this channel. Several
	// channels may share one slot (e.g. magnetic field and orientation
	// both come from the AKM part).
	Slot string
}

// Slot is one physical driver position with the logical channels it
// serves, in catalog order.
type Slot struct {
	Name    string
	Handles []Handle
}

type Catalog struct {
	sensors []Sensor
}

func New(sensors []Sensor) Catalog {
	return Catalog{sensors: sensors}
}

// Default returns the built-in catalog for the reference hardware.
func Default() Catalog {
	return New([]Sensor{
		{
			Name: "CM3663 Light sensor", Vendor: "Capella Microsystems",
			Version: 1, Handle: HandleLight, Type: TypeLight,
			MaxRange: 10240.0, Resolution: 1.0, Power: 0.75,
			MinDelayNs: DelayEventDriven, Slot: "light",
		},
		{
			Name: "AK8975 Orientation sensor", Vendor: "Asahi Kasei Microdevices",
			Version: 1, Handle: HandleOrientation, Type: TypeOrientation,
			MaxRange: 360.0, Resolution: 0.015625, Power: 7.8,
			MinDelayNs: 200000000, Slot: "akm",
		},
		{
			Name: "KXTF9 3-axis Accelerometer", Vendor: "Kyonix",
			Version: 1, Handle: HandleAccelerometer, Type: TypeAccelerometer,
			MaxRange: 19.61, Resolution: 0.0096, Power: 0.23,
			MinDelayNs: 50000000, Slot: "kxt",
		},
		{
			Name: "AK8975 3-axis Magnetic field sensor", Vendor: "Asahi Kasei Microdevices",
			Version: 1, Handle: HandleMagneticField, Type: TypeMagneticField,
			MaxRange: 2000.0, Resolution: 0.06, Power: 6.8,
			MinDelayNs: 100000000, Slot: "akm",
		},
		{
			Name: "MPU3050 Gyroscope sensor", Vendor: "InvenSense",
			Version: 1, Handle: HandleGyroscope, Type: TypeGyroscope,
			MaxRange: 34.91, Resolution: 0.0011, Power: 6.1,
			MinDelayNs: 50000000, Slot: "mpu",
		},
		{
			Name: "NCT1008 Battery Temperature", Vendor: "ON Semiconductor",
			Version: 1, Handle: HandleTemperature, Type: TypeTemperature,
			MaxRange: 127.0, Resolution: 1.0, Power: 0.24,
			MinDelayNs: 500000000, Slot: "nct",
		},
		{
			Name: "CM3663 Proximity sensor", Vendor: "Capella Microsystems",
			Version: 1, Handle: HandleProximity, Type: TypeProximity,
			MaxRange: 5.0, Resolution: 5.0, Power: 0.75,
			MinDelayNs: DelayEventDriven, Slot: "proximity",
		},
	})
}

// Load parses a catalog from JSON of the shape
//
//	{"sensors": [{"name": ..., "vendor": ..., "handle": ..., ...}, ...]}
//
// Fields mirror the Sensor struct; "minDelayNs" and "slot" are required,
// numeric fields default to zero.
func Load(data []byte) (Catalog, error) {
	if !gjson.ValidBytes(data) {
		return Catalog{}, ErrInvalidCatalog
	}

	raw := gjson.GetBytes(data, "sensors")
	if !raw.IsArray() {
		return Catalog{}, fmt.Errorf("Failed to load catalog, 'sensors' is not an array: %w", ErrInvalidCatalog)
	}

	var sensors []Sensor

	for _, entry := range raw.Array() {
		slot := entry.Get("slot").String()
		if slot == "" {
			return Catalog{}, fmt.Errorf("Failed to load catalog, sensor %q has no slot: %w",
				entry.Get("name").String(), ErrInvalidCatalog)
		}

		sensors = append(sensors, Sensor{
			Name:       entry.Get("name").String(),
			Vendor:     entry.Get("vendor").String(),
			Version:    int(entry.Get("version").Int()),
			Handle:     Handle(entry.Get("handle").Int()),
			Type:       Type(entry.Get("type").Int()),
			MaxRange:   entry.Get("maxRange").Float(),
			Resolution: entry.Get("resolution").Float(),
			Power:      entry.Get("power").Float(),
			MinDelayNs: entry.Get("minDelayNs").Int(),
			Slot:       slot,
		})
	}

	return New(sensors), nil
}

// Sensors returns the catalog entries in declaration order.
func (c Catalog) Sensors() []Sensor {
	out := make([]Sensor, len(c.sensors))
	copy(out, c.sensors)
	return out
}

func (c Catalog) Len() int {
	return len(c.sensors)
}

// ByHandle finds the entry for a logical channel.
func (c Catalog) ByHandle(h Handle) (Sensor, bool) {
	for _, s := range c.sensors {
		if s.Handle == h {
			return s, true
		}
	}

	return Sensor{}, false
}

// Slots groups the catalog by physical driver, preserving first-seen
// order. The aggregator's slot list and routing table derive from this.
func (c Catalog) Slots() []Slot {
	var (
		order []string
		byName = make(map[string]*Slot)
	)

	for _, s := range c.sensors {
		slot, ok := byName[s.Slot]
		if !ok {
			order = append(order, s.Slot)
			slot = &Slot{Name: s.Slot}
			byName[s.Slot] = slot
		}

		slot.Handles = append(slot.Handles, s.Handle)
	}

	out := make([]Slot, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}

	return out
}

// JSON renders the catalog in the same shape Load accepts.
func (c Catalog) JSON() ([]byte, error) {
	var (
		data = []byte(`{"sensors":[]}`)
		err  error
	)

	for i, s := range c.sensors {
		prefix := fmt.Sprintf("sensors.%d.", i)

		for key, value := range map[string]interface{}{
			"name":       s.Name,
			"vendor":     s.Vendor,
			"version":    s.Version,
			"handle":     int64(s.Handle),
			"type":       int64(s.Type),
			"maxRange":   s.MaxRange,
			"resolution": s.Resolution,
			"power":      s.Power,
			"minDelayNs": s.MinDelayNs,
			"slot":       s.Slot,
		} {
			data, err = sjson.SetBytes(data, prefix+key, value)
			if err != nil {
				return nil, err
			}
		}
	}

	return data, nil
}

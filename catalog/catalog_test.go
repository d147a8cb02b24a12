package catalog_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/argus/catalog"
)

var _ = Describe("catalog", func() {
	Describe("Default()", func() {
		It("describes the full reference sensor set", func() {
			cat := catalog.Default()
			Expect(cat.Len()).To(Equal(7))
		})

		It("routes magnetic field and orientation to the same slot", func() {
			cat := catalog.Default()

			mag, ok := cat.ByHandle(catalog.HandleMagneticField)
			Expect(ok).To(BeTrue())

			orient, ok := cat.ByHandle(catalog.HandleOrientation)
			Expect(ok).To(BeTrue())

			Expect(mag.Slot).To(Equal(orient.Slot))
		})
	})

	Describe("ByHandle()", func() {
		It("returns false for a handle outside the catalog", func() {
			_, ok := catalog.Default().ByHandle(catalog.Handle(99))
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Slots()", func() {
		It("groups channels by driver slot preserving catalog order", func() {
			slots := catalog.Default().Slots()

			names := make([]string, 0, len(slots))
			for _, slot := range slots {
				names = append(names, slot.Name)
			}

			Expect(names).To(Equal([]string{"light", "akm", "kxt", "mpu", "nct", "proximity"}))
		})

		It("gives shared slots every channel they serve", func() {
			for _, slot := range catalog.Default().Slots() {
				if slot.Name != "akm" {
					continue
				}

				Expect(slot.Handles).To(ConsistOf(
					catalog.HandleOrientation, catalog.HandleMagneticField,
				))
				return
			}

			Fail("the akm slot is missing")
		})
	})

	Describe("Load() / JSON()", func() {
		It("round-trips the default catalog", func() {
			cat := catalog.Default()

			data, err := cat.JSON()
			Expect(err).To(Succeed())

			loaded, err := catalog.Load(data)
			Expect(err).To(Succeed())

			Expect(loaded.Sensors()).To(Equal(cat.Sensors()))
		})

		It("rejects malformed JSON", func() {
			_, err := catalog.Load([]byte(`{"sensors": [`))
			Expect(err).To(MatchError(catalog.ErrInvalidCatalog))
		})

		It("rejects a document without a sensors array", func() {
			_, err := catalog.Load([]byte(`{"sensors": 42}`))
			Expect(err).To(MatchError(catalog.ErrInvalidCatalog))
		})

		It("rejects a sensor without a slot", func() {
			_, err := catalog.Load([]byte(`{"sensors": [{"name": "orphan", "handle": 3}]}`))
			Expect(err).To(MatchError(catalog.ErrInvalidCatalog))
		})
	})
})

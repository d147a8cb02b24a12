package status_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/argus/catalog"
	"github.com/luma/argus/hal"
	"github.com/luma/argus/status"
)

var _ = Describe("status / InmemoryStore", func() {
	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			store := status.NewInmemoryStore()
			defer store.Close()

			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})
	})

	It("an empty store snapshots to {}", func() {
		store := status.NewInmemoryStore()
		defer store.Close()

		value, err := store.Snapshot()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Record() / Latest()", func() {
		It("returns nil for a channel with no reading yet", func() {
			store := status.NewInmemoryStore()
			defer store.Close()

			value, err := store.Latest(catalog.HandleLight)
			Expect(err).To(Succeed())
			Expect(value).To(BeNil())
		})

		It("keeps the latest reading per channel", func() {
			store := status.NewInmemoryStore()
			defer store.Close()

			Expect(store.Record(hal.Event{
				Handle: catalog.HandleLight, Type: catalog.TypeLight,
				Timestamp: 41, Values: [6]float32{100},
			})).To(Succeed())
			Expect(store.Record(hal.Event{
				Handle: catalog.HandleLight, Type: catalog.TypeLight,
				Timestamp: 42, Values: [6]float32{350.5},
			})).To(Succeed())

			value, err := store.Latest(catalog.HandleLight)
			Expect(err).To(Succeed())

			Expect(gjson.GetBytes(value, "handle").Int()).To(Equal(int64(catalog.HandleLight)))
			Expect(gjson.GetBytes(value, "type").Int()).To(Equal(int64(catalog.TypeLight)))
			Expect(gjson.GetBytes(value, "timestamp").Int()).To(Equal(int64(42)))
			Expect(gjson.GetBytes(value, "values.0").Float()).To(BeNumerically("~", 350.5))
		})

		It("keeps channels independent in the snapshot", func() {
			store := status.NewInmemoryStore()
			defer store.Close()

			Expect(store.Record(hal.Event{Handle: catalog.HandleLight, Timestamp: 1})).To(Succeed())
			Expect(store.Record(hal.Event{Handle: catalog.HandleProximity, Timestamp: 2})).To(Succeed())

			snapshot, err := store.Snapshot()
			Expect(err).To(Succeed())

			Expect(gjson.GetBytes(snapshot, "5.timestamp").Int()).To(Equal(int64(1)))
			Expect(gjson.GetBytes(snapshot, "8.timestamp").Int()).To(Equal(int64(2)))
		})

		It("sends on the update channel when readings are recorded", func() {
			store := status.NewInmemoryStore()
			defer store.Close()

			updateChan := store.ListenToUpdates()
			Expect(store.Record(hal.Event{Handle: catalog.HandleLight, Timestamp: 9})).To(Succeed())

			update, ok := <-updateChan
			Expect(ok).To(BeTrue())
			Expect(update.Handle).To(Equal(catalog.HandleLight))
			Expect(gjson.GetBytes(update.Value, "timestamp").Int()).To(Equal(int64(9)))
		})
	})
})

package stream_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/luma/argus/catalog"
	"github.com/luma/argus/drivers/stream"
	"github.com/luma/argus/hal"
)

// makeDriver returns a driver fed by the write end of a pipe.
func makeDriver(handles ...catalog.Handle) (*stream.Driver, int) {
	var fds [2]int
	Expect(unix.Pipe(fds[:])).To(Succeed())

	driver, err := stream.New(fds[0], handles)
	Expect(err).To(Succeed())

	return driver, fds[1]
}

func feed(fd int, events ...hal.Event) {
	var data []byte
	for _, ev := range events {
		data = hal.AppendEvent(data, ev)
	}

	n, err := unix.Write(fd, data)
	Expect(err).To(Succeed())
	Expect(n).To(Equal(len(data)))
}

var _ = Describe("drivers / stream", func() {
	Describe("New()", func() {
		It("requires at least one handle", func() {
			var fds [2]int
			Expect(unix.Pipe(fds[:])).To(Succeed())
			defer unix.Close(fds[0])
			defer unix.Close(fds[1])

			_, err := stream.New(fds[0], nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Enable() / SetInterval()", func() {
		It("rejects handles the driver does not serve", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer driver.Close()
			defer unix.Close(w)

			Expect(driver.Enable(catalog.HandleGyroscope, true)).To(MatchError(stream.ErrUnknownHandle))
			Expect(driver.SetInterval(catalog.HandleGyroscope, 1000)).To(MatchError(stream.ErrUnknownHandle))
		})

		It("records the interval per channel", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer driver.Close()
			defer unix.Close(w)

			Expect(driver.SetInterval(catalog.HandleLight, 250000000)).To(Succeed())
			Expect(driver.Interval(catalog.HandleLight)).To(Equal(int64(250000000)))
		})
	})

	Describe("ReadEvents()", func() {
		It("returns nothing when the source is quiet", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer driver.Close()
			defer unix.Close(w)

			out := make([]hal.Event, 4)
			n, err := driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(0))
		})

		It("delivers events for enabled channels", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer driver.Close()
			defer unix.Close(w)

			Expect(driver.Enable(catalog.HandleLight, true)).To(Succeed())
			feed(w, hal.Event{Handle: catalog.HandleLight, Type: catalog.TypeLight, Timestamp: 42, Values: [6]float32{350}})

			out := make([]hal.Event, 4)
			n, err := driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(1))
			Expect(out[0].Handle).To(Equal(catalog.HandleLight))
			Expect(out[0].Timestamp).To(Equal(int64(42)))
			Expect(out[0].Values[0]).To(Equal(float32(350)))
		})

		It("drops records for disabled channels", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer driver.Close()
			defer unix.Close(w)

			feed(w, hal.Event{Handle: catalog.HandleLight, Timestamp: 1})

			out := make([]hal.Event, 4)
			n, err := driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(0))
		})

		It("parks records beyond the caller's buffer and reports them as pending", func() {
			driver, w := makeDriver(catalog.HandleAccelerometer)
			defer driver.Close()
			defer unix.Close(w)

			Expect(driver.Enable(catalog.HandleAccelerometer, true)).To(Succeed())
			feed(w,
				hal.Event{Handle: catalog.HandleAccelerometer, Timestamp: 1},
				hal.Event{Handle: catalog.HandleAccelerometer, Timestamp: 2},
				hal.Event{Handle: catalog.HandleAccelerometer, Timestamp: 3},
			)

			out := make([]hal.Event, 1)
			n, err := driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(1))
			Expect(out[0].Timestamp).To(Equal(int64(1)))

			Expect(driver.HasPendingEvents()).To(BeTrue())

			rest := make([]hal.Event, 4)
			n, err = driver.ReadEvents(rest)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(2))
			Expect(rest[0].Timestamp).To(Equal(int64(2)))
			Expect(rest[1].Timestamp).To(Equal(int64(3)))

			Expect(driver.HasPendingEvents()).To(BeFalse())
		})

		It("reassembles a record split across two writes", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer driver.Close()
			defer unix.Close(w)

			Expect(driver.Enable(catalog.HandleLight, true)).To(Succeed())

			raw := hal.AppendEvent(nil, hal.Event{Handle: catalog.HandleLight, Timestamp: 11})
			half := len(raw) / 2

			_, err := unix.Write(w, raw[:half])
			Expect(err).To(Succeed())

			out := make([]hal.Event, 4)
			n, err := driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(0))

			_, err = unix.Write(w, raw[half:])
			Expect(err).To(Succeed())

			n, err = driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(1))
			Expect(out[0].Timestamp).To(Equal(int64(11)))
		})

		It("purges parked records when their channel is disabled", func() {
			driver, w := makeDriver(catalog.HandleLight, catalog.HandleProximity)
			defer driver.Close()
			defer unix.Close(w)

			Expect(driver.Enable(catalog.HandleLight, true)).To(Succeed())
			Expect(driver.Enable(catalog.HandleProximity, true)).To(Succeed())
			feed(w,
				hal.Event{Handle: catalog.HandleLight, Timestamp: 1},
				hal.Event{Handle: catalog.HandleProximity, Timestamp: 2},
				hal.Event{Handle: catalog.HandleLight, Timestamp: 3},
			)

			out := make([]hal.Event, 1)
			n, err := driver.ReadEvents(out)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(1))

			Expect(driver.Enable(catalog.HandleProximity, false)).To(Succeed())

			rest := make([]hal.Event, 4)
			n, err = driver.ReadEvents(rest)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(1))
			Expect(rest[0].Handle).To(Equal(catalog.HandleLight))
			Expect(rest[0].Timestamp).To(Equal(int64(3)))
		})
	})

	Describe("Close()", func() {
		It("does not fail when closed twice", func() {
			driver, w := makeDriver(catalog.HandleLight)
			defer unix.Close(w)

			Expect(driver.Close()).To(Succeed())
			Expect(driver.Close()).To(Succeed())
		})
	})
})

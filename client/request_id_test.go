package client

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Conn / request IDs", func() {
	It("never produces an ID containing line delimiters", func() {
		c := New(zap.NewNop())

		// Run past the wrap point so every ID the counter can produce
		// is checked, including the ones whose raw value contains
		// '\n' (10) or '\r' (13).
		for i := 0; i < 0xFFFF+16; i++ {
			id := c.getNextRequestID()
			Expect(bytes.ContainsAny(id[:], "\r\n")).To(BeFalse(),
				"request ID %q contains a line delimiter", id.String())
		}
	})

	It("wraps around instead of overflowing", func() {
		c := New(zap.NewNop())
		c.requestId = 0xFFFF

		Expect(c.getNextRequestID().String()).To(Equal("0000"))
		Expect(c.getNextRequestID().String()).To(Equal("0001"))
	})
})

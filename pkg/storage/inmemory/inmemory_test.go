package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("inmemory", func() storage.Driver {
	return inmemory.NewDriver()
})

var _ = Describe("Driver", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		Expect(storage.PutSession(ctx, driver, storagetest.NewSession("s1", "john", 0))).To(Succeed())
	})

	Describe("Count", func() {
		It("counts information records", func() {
			Expect(driver.Count()).To(Equal(0))
			Expect(storage.AppendInformation(ctx, driver, storagetest.NewInformation("i1", "s1", "john", "a", "x", 0))).To(Succeed())
			Expect(driver.Count()).To(Equal(1))
		})
	})

	Describe("Clone", func() {
		It("returns an independent copy", func() {
			clone := driver.Clone()
			Expect(storage.AppendInformation(ctx, clone, storagetest.NewInformation("i1", "s1", "john", "a", "x", time.Second))).To(Succeed())

			Expect(clone.Count()).To(Equal(1))
			Expect(driver.Count()).To(Equal(0))

			orig, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(orig.InformationCount).To(Equal(0))
		})
	})

	Describe("returned values", func() {
		It("are copies the caller may modify", func() {
			s, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			s.CallerID = "mallory"

			again, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.CallerID).To(Equal("john"))
		})
	})

	Describe("Apply", func() {
		It("rejects a malformed mutation before taking any lock", func() {
			Expect(driver.Apply(ctx, &storage.Mutation{})).To(MatchError(ContainSubstring("empty mutation")))
		})
	})
})

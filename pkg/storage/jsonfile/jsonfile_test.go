package jsonfile_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/jsonfile"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("jsonfile", func() storage.Driver {
	d, err := jsonfile.NewDriver(filepath.Join(GinkgoT().TempDir(), "store.json"))
	Expect(err).NotTo(HaveOccurred())
	return d
})

var _ = Describe("Driver", func() {
	var (
		ctx  context.Context
		path string
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "data", "store.json")
	})

	It("treats a missing file as an empty store", func() {
		d, err := jsonfile.NewDriver(path)
		Expect(err).NotTo(HaveOccurred())

		sessions, err := d.ListSessions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(BeEmpty())
		Expect(path).NotTo(BeAnExistingFile())
	})

	It("persists every commit across reopen", func() {
		d, err := jsonfile.NewDriver(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(storage.PutSession(ctx, d, storagetest.NewSession("s1", "john", 0))).To(Succeed())
		Expect(storage.AppendInformation(ctx, d, storagetest.NewInformation("i1", "s1", "john", "debt_info", "$25,000", time.Second))).To(Succeed())
		Expect(d.Close()).To(Succeed())

		reopened, err := jsonfile.NewDriver(path)
		Expect(err).NotTo(HaveOccurred())

		s, err := reopened.GetSession(ctx, "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.InformationCount).To(Equal(1))

		records, err := reopened.ListInformation(ctx, storage.InformationFilter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Information).To(Equal("$25,000"))
	})

	It("leaves no temp files behind", func() {
		d, err := jsonfile.NewDriver(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(storage.PutSession(ctx, d, storagetest.NewSession("s1", "john", 0))).To(Succeed())

		entries, err := os.ReadDir(filepath.Dir(path))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).To(Equal("store.json"))
	})

	It("does not touch the file when a mutation is rejected", func() {
		d, err := jsonfile.NewDriver(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(storage.PutSession(ctx, d, storagetest.NewSession("s1", "john", 0))).To(Succeed())
		before, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		err = storage.AppendInformation(ctx, d, storagetest.NewInformation("i1", "missing", "john", "a", "x", 0))
		Expect(storage.IsInvariantViolation(err)).To(BeTrue())

		after, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
	})

	It("reports unparseable content as corrupt", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())

		_, err := jsonfile.NewDriver(path)
		var corrupt storage.CorruptStoreError
		Expect(err).To(BeAssignableToTypeOf(corrupt))
	})

	It("reports inconsistent content as corrupt", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		content := `{"version":1,"sessions":[],"information":[{"id":"i1","session_id":"ghost"}],"call_logs":[]}`
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

		_, err := jsonfile.NewDriver(path)
		Expect(err).To(MatchError(ContainSubstring("unknown session")))
		var corrupt storage.CorruptStoreError
		Expect(err).To(BeAssignableToTypeOf(corrupt))
	})
})

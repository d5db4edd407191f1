package callfactscmder_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	callfactscmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/jsonfile"
)

var _ = Describe("callfacts", func() {
	var (
		configDir string
		storePath string
	)

	run := func(args ...string) (string, error) {
		var out, errOut bytes.Buffer
		cmd := callfactscmder.NewCallfactsCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetArgs(append(args, "--config-dir", configDir))
		err := cmd.Execute()
		return out.String(), err
	}

	store := func(args ...string) []string {
		return append(args, "--storage", "jsonfile", "--json-path", storePath)
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		storePath = filepath.Join(GinkgoT().TempDir(), "callfacts.json")
	})

	It("registers every subcommand", func() {
		cmd := callfactscmder.NewCallfactsCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "invoke", "summary", "watch", "snapshot", "seed", "config", "version"))
	})

	Describe("invoke", func() {
		It("runs a call lifecycle against a durable store", func() {
			out, err := run(store("invoke", gateway.OpShareInformation,
				`{"information": "Has $15,000 in credit card debt", "category": "debt_info", "caller_id": "john_555-1234"}`)...)
			Expect(err).NotTo(HaveOccurred())

			var shared gateway.FunctionResult
			Expect(json.Unmarshal([]byte(out), &shared)).To(Succeed())
			Expect(shared.Success).To(BeTrue())
			Expect(*shared.Created).To(BeTrue())

			out, err = run(store("invoke", gateway.OpEndCall,
				`{"reason": "customer_qualified_transfer", "caller_id": "john_555-1234", "duration": 420}`,
				"--session-id", shared.SessionID)...)
			Expect(err).NotTo(HaveOccurred())

			var ended gateway.FunctionResult
			Expect(json.Unmarshal([]byte(out), &ended)).To(Succeed())
			Expect(*ended.InformationSharedCount).To(Equal(1))

			// A fresh driver sees what the commands committed.
			driver, err := jsonfile.NewDriver(storePath)
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()

			sess, err := driver.GetSession(GinkgoT().Context(), shared.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(record.StatusEnded))
		})

		It("prints the failure envelope and exits with an error", func() {
			out, err := run(store("invoke", gateway.OpShareInformation, `{"category": "debt_info"}`)...)
			Expect(err).To(HaveOccurred())

			var res gateway.FunctionResult
			Expect(json.Unmarshal([]byte(out), &res)).To(Succeed())
			Expect(res.Success).To(BeFalse())
			Expect(res.ErrorKind).To(Equal(gateway.KindValidation))
		})
	})

	Describe("seed and summary", func() {
		It("reports the seeded calls", func() {
			_, err := run(store("seed")...)
			Expect(err).NotTo(HaveOccurred())

			out, err := run(store("summary", "--raw")...)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("# Call facts"))
			Expect(out).To(ContainSubstring("| Sessions | 3 (1 active, 2 ended) |"))
			Expect(out).To(ContainSubstring("| debt_info | 3 |"))
			Expect(out).To(ContainSubstring("customer_qualified_transfer"))
			Expect(out).To(ContainSubstring("not_qualified"))
		})

		It("rejects a non-positive limit", func() {
			_, err := run(store("summary", "--limit", "0")...)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("snapshot", func() {
		It("round-trips a store through export and import", func() {
			_, err := run(store("seed")...)
			Expect(err).NotTo(HaveOccurred())

			exported, err := run(store("snapshot", "export")...)
			Expect(err).NotTo(HaveOccurred())

			var snap record.Snapshot
			Expect(json.Unmarshal([]byte(exported), &snap)).To(Succeed())
			Expect(snap.Sessions).To(HaveLen(3))
			Expect(snap.CallLogs).To(HaveLen(2))

			backup := filepath.Join(GinkgoT().TempDir(), "backup.json")
			Expect(os.WriteFile(backup, []byte(exported), 0o600)).To(Succeed())

			otherPath := filepath.Join(GinkgoT().TempDir(), "restored.json")
			_, err = run("snapshot", "import", backup, "--storage", "jsonfile", "--json-path", otherPath)
			Expect(err).NotTo(HaveOccurred())

			restored, err := run("snapshot", "export", "--storage", "jsonfile", "--json-path", otherPath)
			Expect(err).NotTo(HaveOccurred())

			var again record.Snapshot
			Expect(json.Unmarshal([]byte(restored), &again)).To(Succeed())
			Expect(again.Sessions).To(HaveLen(3))
			Expect(again.Information).To(HaveLen(len(snap.Information)))
			Expect(again.CallLogs).To(HaveLen(2))
		})

		It("refuses to replace a store with data unless forced", func() {
			_, err := run(store("seed")...)
			Expect(err).NotTo(HaveOccurred())

			backup := filepath.Join(GinkgoT().TempDir(), "empty.json")
			data, err := json.Marshal(record.NewSnapshot())
			Expect(err).NotTo(HaveOccurred())
			Expect(os.WriteFile(backup, data, 0o600)).To(Succeed())

			_, err = run(store("snapshot", "import", backup)...)
			Expect(err).To(MatchError(ContainSubstring("not empty")))

			_, err = run(store("snapshot", "import", backup, "--force")...)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a snapshot that does not parse", func() {
			backup := filepath.Join(GinkgoT().TempDir(), "broken.json")
			Expect(os.WriteFile(backup, []byte("{"), 0o600)).To(Succeed())

			_, err := run(store("snapshot", "import", backup)...)
			Expect(err).To(MatchError(ContainSubstring("corrupt store")))
		})
	})

	Describe("version", func() {
		It("prints the build version", func() {
			out, err := run("version")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("dev"))
		})
	})
})

package storeopen_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/jsonfile"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/sqlite"
)

var _ = Describe("ResolvePath", func() {
	var (
		origHome string
		origXDG  string
		origCwd  string
		homeDir  string
		cwdDir   string
	)

	BeforeEach(func() {
		origHome = os.Getenv("HOME")
		origXDG = os.Getenv("XDG_DATA_HOME")
		var err error
		origCwd, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		homeDir = GinkgoT().TempDir()
		cwdDir = GinkgoT().TempDir()
		Expect(os.Setenv("HOME", homeDir)).To(Succeed())
		Expect(os.Setenv("XDG_DATA_HOME", "")).To(Succeed())
		Expect(os.Chdir(cwdDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Setenv("HOME", origHome)).To(Succeed())
		Expect(os.Setenv("XDG_DATA_HOME", origXDG)).To(Succeed())
		Expect(os.Chdir(origCwd)).To(Succeed())
	})

	It("prefers an explicit override", func() {
		path, err := storeopen.ResolvePath("/tmp/custom.db", "", storeopen.SQLiteFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.db"))
	})

	It("uses the config directory when given", func() {
		configDir := filepath.Join(cwdDir, "conf")
		path, err := storeopen.ResolvePath("", configDir, storeopen.JSONFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(configDir, storeopen.JSONFile)))
		Expect(configDir).To(BeADirectory())
	})

	It("resolves ~/.callfacts/callfacts.db when present", func() {
		dbPath := filepath.Join(homeDir, ".callfacts", storeopen.SQLiteFile)
		Expect(os.MkdirAll(filepath.Dir(dbPath), 0o755)).To(Succeed())
		Expect(os.WriteFile(dbPath, []byte("test"), 0o644)).To(Succeed())

		path, err := storeopen.ResolvePath("", "", storeopen.SQLiteFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(dbPath))
	})

	It("prefers a store in the working directory", func() {
		Expect(os.WriteFile(filepath.Join(cwdDir, storeopen.SQLiteFile), []byte("test"), 0o644)).To(Succeed())

		path, err := storeopen.ResolvePath("", "", storeopen.SQLiteFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(storeopen.SQLiteFile))
	})

	It("falls back to a new file in ~/.callfacts", func() {
		path, err := storeopen.ResolvePath("", "", storeopen.SQLiteFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveSuffix(filepath.Join(".callfacts", storeopen.SQLiteFile)))
		Expect(filepath.Join(homeDir, ".callfacts")).To(BeADirectory())
	})
})

var _ = Describe("Open", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
	})

	open := func(cfg config.StorageConfig) (storage.Driver, error) {
		return storeopen.Open(ctx, cfg, dir, logger.Nop())
	}

	It("opens the in-memory driver", func() {
		d, err := open(config.StorageConfig{Driver: config.DriverMemory})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("opens the JSON file driver in the config directory", func() {
		d, err := open(config.StorageConfig{Driver: config.DriverJSONFile})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		jf, ok := d.(*jsonfile.Driver)
		Expect(ok).To(BeTrue())
		Expect(jf.Path()).To(Equal(filepath.Join(dir, storeopen.JSONFile)))
	})

	It("defaults to SQLite", func() {
		d, err := open(config.StorageConfig{})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		Expect(d).To(BeAssignableToTypeOf(&sqlite.Driver{}))
		Expect(filepath.Join(dir, storeopen.SQLiteFile)).To(BeAnExistingFile())
	})

	It("refuses a corrupt store", func() {
		path := filepath.Join(dir, "broken.json")
		Expect(os.WriteFile(path, []byte("{not json"), 0o644)).To(Succeed())

		_, err := open(config.StorageConfig{Driver: config.DriverJSONFile, JSONPath: path})
		var corrupt storage.CorruptStoreError
		Expect(errors.As(err, &corrupt)).To(BeTrue())
	})

	It("requires a DSN for postgres", func() {
		_, err := open(config.StorageConfig{Driver: config.DriverPostgres})
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})

	It("rejects an unknown driver", func() {
		_, err := open(config.StorageConfig{Driver: "mongo"})
		Expect(err).To(MatchError(ContainSubstring(`unknown storage driver "mongo"`)))
	})
})

package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file and fills the gaps with defaults", func() {
			data := `version = 0

[storage]
driver = "jsonfile"
json_path = "/var/lib/callfacts/store.json"

[gateway]
max_retries = 7
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("jsonfile"))
			Expect(cfg.Storage.JSONPath).To(Equal("/var/lib/callfacts/store.json"))
			Expect(cfg.Gateway.MaxRetries).To(Equal(uint(7)))
			Expect(cfg.Gateway.WriteTimeout).To(Equal("5s"))
			Expect(cfg.API.Listen).To(Equal(":8081"))
			Expect(cfg.EventStream.Topic).To(Equal("callfacts.records"))
		})

		It("returns error for malformed TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not valid [[["), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})
	})

	Describe("SaveConfig", func() {
		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError(ContainSubstring("nil config")))
		})

		It("round-trips every field", func() {
			cfg := &config.Config{
				Version: config.CurrentV,
				Storage: config.StorageConfig{
					Driver:      "postgres",
					SQLitePath:  "/tmp/test.db",
					JSONPath:    "/tmp/test.json",
					PostgresDSN: "postgres://callfacts@localhost/callfacts",
				},
				API:         config.APIConfig{Listen: ":9091"},
				Gateway:     config.GatewayConfig{WriteTimeout: "2s", MaxRetries: 5},
				EventStream: config.EventStreamConfig{Brokers: "k1:9092,k2:9092", Topic: "calls"},
				Log:         config.LogConfig{Debug: true, JSON: true},
				Client:      config.ClientConfig{APITarget: "http://callfacts.internal:9091"},
			}

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})
	})

	Describe("SetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets and gets a string key", func() {
			Expect(c.SetConfigValue("storage.sqlite_path", "/data/callfacts.db")).To(Succeed())

			val, err := c.GetConfigValue("storage.sqlite_path")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("/data/callfacts.db"))
		})

		It("validates storage.driver", func() {
			Expect(c.SetConfigValue("storage.driver", "memory")).To(Succeed())
			Expect(c.SetConfigValue("storage.driver", "mongo")).To(MatchError(ContainSubstring("invalid value for storage.driver")))

			val, err := c.GetConfigValue("storage.driver")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("memory"))
		})

		It("validates gateway.write_timeout", func() {
			Expect(c.SetConfigValue("gateway.write_timeout", "250ms")).To(Succeed())
			Expect(c.SetConfigValue("gateway.write_timeout", "soon")).To(HaveOccurred())
			Expect(c.SetConfigValue("gateway.write_timeout", "-1s")).To(HaveOccurred())
		})

		It("sets a uint key", func() {
			Expect(c.SetConfigValue("gateway.max_retries", "9")).To(Succeed())
			val, err := c.GetConfigValue("gateway.max_retries")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("9"))

			Expect(c.SetConfigValue("gateway.max_retries", "-1")).To(MatchError(ContainSubstring("invalid value for gateway.max_retries")))
		})

		It("sets a bool key", func() {
			Expect(c.SetConfigValue("log.debug", "true")).To(Succeed())
			val, err := c.GetConfigValue("log.debug")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("true"))

			Expect(c.SetConfigValue("log.debug", "maybe")).To(HaveOccurred())
		})

		It("returns error for unknown key", func() {
			Expect(c.SetConfigValue("nonexistent_key", "x")).To(MatchError(ContainSubstring("unknown config key")))
			_, err := c.GetConfigValue("nonexistent_key")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("api.listen", ":9000")).To(Succeed())
			Expect(c.SetConfigValue("eventstream.topic", "facts")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.API.Listen).To(Equal(":9000"))
			Expect(cfg.EventStream.Topic).To(Equal("facts"))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("returns every key in section order", func() {
			Expect(config.ValidConfigKeys()).To(Equal([]string{
				"storage.driver",
				"storage.sqlite_path",
				"storage.json_path",
				"storage.postgres_dsn",
				"api.listen",
				"gateway.write_timeout",
				"gateway.max_retries",
				"eventstream.brokers",
				"eventstream.topic",
				"client.api_target",
				"log.debug",
				"log.json",
			}))
		})

		It("agrees with IsValidConfigKey", func() {
			for _, k := range config.ValidConfigKeys() {
				Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
			}
			Expect(config.IsValidConfigKey("")).To(BeFalse())
			Expect(config.IsValidConfigKey("proxy.upstream")).To(BeFalse())
		})
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.Driver).To(BeEmpty())
	})

	It("rejects unsupported config version", func() {
		cfg, err := config.ParseConfigTOML([]byte("version = 2\n"))
		Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
		Expect(cfg).To(BeNil())
	})
})

var _ = Describe("GatewayConfig", func() {
	It("parses the write timeout", func() {
		d, err := config.GatewayConfig{WriteTimeout: "1500ms"}.Timeout()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(1500 * time.Millisecond))
	})

	It("treats an empty timeout as unset", func() {
		d, err := config.GatewayConfig{}.Timeout()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeZero())
	})
})

var _ = Describe("EventStreamConfig", func() {
	It("splits the broker list", func() {
		Expect(config.EventStreamConfig{Brokers: " k1:9092, ,k2:9092 "}.BrokerList()).To(Equal([]string{"k1:9092", "k2:9092"}))
		Expect(config.EventStreamConfig{}.BrokerList()).To(BeEmpty())
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.FromViper(v)).To(Equal(config.NewDefaultConfig()))
	})

	It("reads config file values over defaults", func() {
		data := `[storage]
driver = "memory"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.driver")).To(Equal("memory"))
		Expect(v.GetString("api.listen")).To(Equal(":8081"))
		Expect(v.GetString("client.api_target")).To(Equal("http://localhost:8081"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[storage]
driver = "memory"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("CALLFACTS_STORAGE_DRIVER", "jsonfile")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.FromViper(v).Storage.Driver).To(Equal("jsonfile"))
	})
})

var _ = Describe("BindRegisteredFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("registers flags with defaults from the config", func() {
		var listen string
		var retries uint
		cmd := &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		config.AddUintFlag(cmd, config.Flags, config.FlagMaxRetries, &retries)

		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8081"))
		Expect(cmd.Flags().Lookup("listen").Shorthand).To(Equal("l"))
		Expect(cmd.Flags().Lookup("max-retries").DefValue).To(Equal("3"))
	})

	It("lets an explicitly set flag win over env", func() {
		GinkgoT().Setenv("CALLFACTS_API_LISTEN", ":7000")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		var listen string
		cmd := &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		Expect(cmd.Flags().Set("listen", ":9999")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})
		Expect(v.GetString("api.listen")).To(Equal(":9999"))
	})

	It("leaves env in charge when the flag is not set", func() {
		GinkgoT().Setenv("CALLFACTS_API_LISTEN", ":7000")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		var listen string
		cmd := &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})
		Expect(v.GetString("api.listen")).To(Equal(":7000"))
	})

	It("skips registry keys that are unknown or unregistered", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{"nope", config.FlagSQLite})
		Expect(v.GetString("storage.sqlite_path")).To(BeEmpty())
	})
})

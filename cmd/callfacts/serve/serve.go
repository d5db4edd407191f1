// Package servecmder provides the serve command that runs the callfacts API,
// function-call and MCP server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/api"
	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/dotdir"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/broadcast"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/kafka"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/nop"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/worker"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
)

type serveCommander struct {
	flags      config.Config
	disableMCP bool

	debug     bool
	configDir string
	cfg       *config.Config

	level  *slog.LevelVar
	logger *slog.Logger
}

var serveFlags = append([]string{
	config.FlagAPIListen,
	config.FlagWriteTimeout,
	config.FlagMaxRetries,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagLogJSON,
}, config.StorageFlags...)

const serveLongDesc string = `Run the callfacts server.

Serves the dashboard read endpoints under /api, a live event stream at
/api/events, the agent function-call endpoint at POST /api/function and the
MCP tools at /mcp. All of them share one Record Store.

When Kafka brokers are configured every committed record is also published
as an event. Publishing never delays or fails a write.

Changing log.debug in config.toml takes effect without a restart.

Examples:
  callfacts serve
  callfacts serve --storage jsonfile --json-path ./callfacts.json
  callfacts serve --kafka-brokers localhost:9092 --debug`

const serveShortDesc string = "Run the callfacts server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, cmder.configDir, err = storeopen.LoadConfig(cmd, serveFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	storeopen.AddStorageFlags(cmd, &cmder.flags.Storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.flags.API.Listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagWriteTimeout, &cmder.flags.Gateway.WriteTimeout)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxRetries, &cmder.flags.Gateway.MaxRetries)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.flags.EventStream.Brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.flags.EventStream.Topic)
	config.AddBoolFlag(cmd, config.Flags, config.FlagLogJSON, &cmder.flags.Log.JSON)
	cmd.Flags().BoolVar(&cmder.disableMCP, "no-mcp", false, "Do not mount the MCP server at /mcp")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.level = new(slog.LevelVar)
	c.level.Set(levelFor(c.debug || c.cfg.Log.Debug))
	c.logger = logger.New(
		logger.WithLevelVar(c.level),
		logger.WithJSON(c.cfg.Log.JSON),
		logger.WithPretty(!c.cfg.Log.JSON && logger.IsTerminal(os.Stdout)),
	)

	writeTimeout, err := c.cfg.Gateway.Timeout()
	if err != nil {
		return err
	}

	driver, err := storeopen.Open(ctx, c.cfg.Storage, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	// Dashboards following /api/events see the same events as Kafka.
	hub := broadcast.NewHub(0)
	pool, err := worker.NewPool(&worker.Config{
		Publisher: eventstream.Multi(publisher, hub),
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event pool: %w", err)
	}
	defer pool.Close()

	gw, err := gateway.New(&gateway.Config{
		Store:        driver,
		Events:       pool,
		Logger:       c.logger,
		WriteTimeout: writeTimeout,
		MaxRetries:   c.cfg.Gateway.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		DisableMCP: c.disableMCP,
		Events:     hub,
	}, gw, query.New(driver), c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// --debug pins the level, so only watch the file when it is unset.
	if !c.debug {
		dir, err := dotdir.NewManager().Target(c.configDir)
		if err != nil {
			return fmt.Errorf("resolving config dir: %w", err)
		}
		go func() {
			if err := watchLogLevel(ctx, dir, c.level, c.logger); err != nil {
				c.logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		if err := server.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutting down API server: %w", err)
		}
		return nil
	}
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := c.cfg.EventStream.BrokerList()
	if len(brokers) == 0 {
		c.logger.Debug("event publishing disabled")
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.cfg.EventStream.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing record events",
		"brokers", brokers,
		"topic", c.cfg.EventStream.Topic,
	)
	return p, nil
}

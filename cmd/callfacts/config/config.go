// Package configcmder provides the config command for managing persistent
// callfacts configuration stored in the .callfacts/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
)

const configLongDesc string = `Manage persistent callfacts configuration.

Configuration is stored as config.toml in the .callfacts/ directory and
provides default values for command flags. CLI flags and CALLFACTS_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.json_path, storage.postgres_dsn,
  api.listen,
  gateway.write_timeout, gateway.max_retries,
  eventstream.brokers, eventstream.topic,
  log.debug, log.json

Use subcommands to get, set, or list configuration values:
  callfacts config set <key> <value>    Set a configuration value
  callfacts config get <key>            Get a configuration value
  callfacts config list                 List all configuration values

Examples:
  callfacts config set storage.driver jsonfile
  callfacts config set gateway.write_timeout 3s
  callfacts config get storage.driver
  callfacts config list`

const configShortDesc string = "Manage persistent callfacts configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file stored in
the .callfacts/ directory. Values are checked before anything is written.

A running "callfacts serve" picks up log.debug changes immediately; other
keys apply on the next start.

Examples:
  callfacts config set storage.driver postgres
  callfacts config set storage.postgres_dsn postgres://localhost/callfacts
  callfacts config set gateway.max_retries 5
  callfacts config set log.debug true`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir)
		},
		ValidArgsFunction: completeKeys,
	}

	return cmd
}

func runSet(w io.Writer, key, value, configDir string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger)

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}

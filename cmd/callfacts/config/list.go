package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays every configuration key and its value from the config.toml file
stored in the .callfacts/ directory.

Examples:
  callfacts config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

func runList(w io.Writer, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger)

	keys := config.ValidConfigKeys()

	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		if value == "" {
			value = "<not set>"
		}
		fmt.Fprintf(w, "  %s\n", cliui.KeyValue(key, value, width))
	}
	fmt.Fprintln(w)

	return nil
}

// Package versioncmder
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cliui.KeyValue("Version:", utils.Version, 9))
			fmt.Fprintln(out, cliui.KeyValue("Sha:", utils.Sha, 9))
			fmt.Fprintln(out, cliui.KeyValue("Built at:", utils.Buildtime, 9))
			return nil
		},
	}

	return cmd
}

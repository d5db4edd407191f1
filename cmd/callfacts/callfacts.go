// Package callfactscmder is the root of the callfacts command tree.
package callfactscmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/config"
	invokecmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/invoke"
	seedcmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/seed"
	servecmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/serve"
	snapshotcmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/snapshot"
	summarycmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/summary"
	watchcmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/watch"
	versioncmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/version"
)

const callfactsLongDesc string = `Callfacts records the facts a customer shares during a live call.

A conversational agent reports facts through function calls; the dashboard
reads them back while calls are still in progress.

Run services using:
  callfacts serve                  Run the API, function-call and MCP server
  callfacts invoke <fn> <params>   Run one function call against the store
  callfacts summary                Print a report of the store
  callfacts watch                  Follow live record events from a server`

const callfactsShortDesc string = "Callfacts - live-call fact store"

func NewCallfactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "callfacts",
		Short:         callfactsShortDesc,
		Long:          callfactsLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .callfacts/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(invokecmder.NewInvokeCmd())
	cmd.AddCommand(summarycmder.NewSummaryCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(snapshotcmder.NewSnapshotCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// Package invokecmder provides the invoke command, which runs a single agent
// function call against the configured store.
package invokecmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
)

type invokeCommander struct {
	flags     config.Config
	sessionID string

	cfg       *config.Config
	configDir string
}

var invokeFlags = append([]string{config.FlagWriteTimeout, config.FlagMaxRetries}, config.StorageFlags...)

const invokeLongDesc string = `Run one agent function call against the configured store.

The function is one of share_information, end_call or get_shared_information.
Parameters are a JSON object; a session_id inside them takes precedence over
--session-id. The result envelope is printed as JSON. A failed call prints
its envelope too and exits non-zero.

Examples:
  callfacts invoke share_information '{"information": "Has $15,000 in credit card debt", "category": "debt_info", "caller_id": "john_555-1234"}'
  callfacts invoke end_call '{"reason": "customer_qualified_transfer", "caller_id": "john_555-1234", "duration": 420}' --session-id <id>
  callfacts invoke get_shared_information '{"category": "debt_info"}'`

const invokeShortDesc string = "Run one function call"

func NewInvokeCmd() *cobra.Command {
	cmder := &invokeCommander{}

	cmd := &cobra.Command{
		Use:   "invoke <function_name> [parameters]",
		Short: invokeShortDesc,
		Long:  invokeLongDesc,
		Args:  cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, cmder.configDir, err = storeopen.LoadConfig(cmd, invokeFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			call := gateway.FunctionCall{
				FunctionName: args[0],
				SessionID:    cmder.sessionID,
			}
			if len(args) == 2 {
				call.Parameters = json.RawMessage(args[1])
			}
			debug, _ := cmd.Flags().GetBool("debug")
			return cmder.run(cmd, call, debug)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return []string{
					gateway.OpShareInformation,
					gateway.OpEndCall,
					gateway.OpGetSharedInformation,
				}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	storeopen.AddStorageFlags(cmd, &cmder.flags.Storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagWriteTimeout, &cmder.flags.Gateway.WriteTimeout)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxRetries, &cmder.flags.Gateway.MaxRetries)
	cmd.Flags().StringVar(&cmder.sessionID, "session-id", "", "Session the call belongs to")

	return cmd
}

func (c *invokeCommander) run(cmd *cobra.Command, call gateway.FunctionCall, debug bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.New(
		logger.WithDebug(debug),
		logger.WithWriter(os.Stderr),
		logger.WithPretty(logger.IsTerminal(os.Stderr)),
	)

	writeTimeout, err := c.cfg.Gateway.Timeout()
	if err != nil {
		return err
	}

	driver, err := storeopen.Open(ctx, c.cfg.Storage, c.configDir, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	gw, err := gateway.New(&gateway.Config{
		Store:        driver,
		Logger:       log,
		WriteTimeout: writeTimeout,
		MaxRetries:   c.cfg.Gateway.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	result, callErr := gw.Dispatch(ctx, call)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return callErr
}

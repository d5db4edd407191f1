// Package seedcmder provides the seed command, which plays demo calls through
// the function-call gateway so the dashboard has something to show.
package seedcmder

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

const seedLongDesc string = `Seed demo calls into the store.

Each demo call shares its facts through the same gateway the agent uses, so
the seeded store obeys every store rule. Two calls are ended and one is left
in progress.

Examples:
  callfacts seed
  callfacts seed --storage jsonfile --json-path ./demo.json
  callfacts seed --overwrite`

const seedShortDesc string = "Seed demo calls"

type seedCommander struct {
	flags     config.Config
	overwrite bool

	cfg       *config.Config
	configDir string
}

type demoFact struct {
	category    string
	information string
}

type demoCall struct {
	callerID string
	facts    []demoFact

	// endReason is empty for a call that is still in progress.
	endReason string
	duration  int64
}

var demoCalls = []demoCall{
	{
		callerID: "john_555-1234",
		facts: []demoFact{
			{"conversation_flow", "Customer started call"},
			{"debt_info", "Has $15,000 in credit card debt"},
			{"contact_info", "Phone number is 555-1234"},
			{"employment", "Works full time as an electrician"},
		},
		endReason: "customer_qualified_transfer",
		duration:  420,
	},
	{
		callerID: "jane_555-9876",
		facts: []demoFact{
			{"conversation_flow", "Customer started call"},
			{"debt_info", "Owes $4,000 on a personal loan"},
		},
		endReason: "customer_declined",
		duration:  95,
	},
	{
		callerID: "sam_555-4321",
		facts: []demoFact{
			{"conversation_flow", "Customer started call"},
			{"debt_info", "Two credit cards, about $9,500 total"},
		},
	},
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, cmder.configDir, err = storeopen.LoadConfig(cmd, config.StorageFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd)
		},
	}

	storeopen.AddStorageFlags(cmd, &cmder.flags.Storage)
	cmd.Flags().BoolVarP(&cmder.overwrite, "overwrite", "f", false, "Empty the store before seeding")

	return cmd
}

func (c *seedCommander) run(ctx context.Context, cmd *cobra.Command) error {
	out := cmd.ErrOrStderr()

	driver, err := storeopen.Open(ctx, c.cfg.Storage, c.configDir, logger.Nop())
	if err != nil {
		return err
	}
	defer driver.Close()

	if c.overwrite {
		if err := driver.Load(ctx, record.NewSnapshot()); err != nil {
			return fmt.Errorf("emptying store: %w", err)
		}
	}

	gw, err := gateway.New(&gateway.Config{Store: driver, Logger: logger.Nop()})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	var factCount int
	if err := cliui.Step(out, "Seeding demo calls", func() error {
		var seedErr error
		factCount, seedErr = Seed(ctx, gw)
		return seedErr
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Seeded %s calls %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(strconv.Itoa(len(demoCalls))),
		cliui.DimStyle.Render(fmt.Sprintf("(%d facts)", factCount)),
	)
	return nil
}

// Seed plays the demo calls through gw and returns how many facts it shared.
func Seed(ctx context.Context, gw *gateway.Gateway) (int, error) {
	var shared int
	for _, call := range demoCalls {
		var sessionID string
		for _, f := range call.facts {
			res, err := gw.ShareInformation(ctx, gateway.ShareInformationRequest{
				Information: f.information,
				Category:    f.category,
				CallerID:    call.callerID,
				SessionID:   sessionID,
			})
			if err != nil {
				return shared, err
			}
			sessionID = res.SessionID
			shared++
		}

		if call.endReason == "" {
			continue
		}
		if _, err := gw.EndCall(ctx, gateway.EndCallRequest{
			Reason:    call.endReason,
			CallerID:  call.callerID,
			Duration:  call.duration,
			SessionID: sessionID,
		}); err != nil {
			return shared, err
		}
	}
	return shared, nil
}

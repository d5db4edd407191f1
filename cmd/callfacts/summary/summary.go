// Package summarycmder provides the summary command, a terminal report of
// the sessions, facts and calls in the store.
package summarycmder

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/utils"
)

const (
	defaultLimit = 10
	previewLen   = 40
)

type summaryCommander struct {
	flags config.Config
	limit int
	raw   bool

	cfg       *config.Config
	configDir string
}

const summaryLongDesc string = `Print a report of the store.

Shows session counts, facts per category, the most recently active sessions
and the most recent calls with their qualification outcome. The report is
markdown, rendered for the terminal unless --raw is given or stdout is not a
terminal.

Examples:
  callfacts summary
  callfacts summary --limit 25
  callfacts summary --raw > report.md`

const summaryShortDesc string = "Print a report of the store"

func NewSummaryCmd() *cobra.Command {
	cmder := &summaryCommander{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: summaryShortDesc,
		Long:  summaryLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.limit <= 0 {
				return query.ErrInvalidLimit
			}
			var err error
			cmder.cfg, cmder.configDir, err = storeopen.LoadConfig(cmd, config.StorageFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	storeopen.AddStorageFlags(cmd, &cmder.flags.Storage)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", defaultLimit, "Sessions and calls to list")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the markdown without rendering it")

	return cmd
}

func (c *summaryCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	driver, err := storeopen.Open(ctx, c.cfg.Storage, c.configDir, logger.Nop())
	if err != nil {
		return err
	}
	defer driver.Close()

	q := query.New(driver)

	sum, err := q.Summary(ctx)
	if err != nil {
		return fmt.Errorf("building summary: %w", err)
	}
	sessions, err := q.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	calls, err := q.ListCalls(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("listing calls: %w", err)
	}
	if len(sessions) > c.limit {
		sessions = sessions[:c.limit]
	}

	report := Report(sum, sessions, calls)

	out := cmd.OutOrStdout()
	if !c.raw && logger.IsTerminal(out) {
		// A render failure still returns the raw markdown.
		report, _ = cliui.RenderMarkdown(report)
	}
	_, err = fmt.Fprint(out, report)
	return err
}

// Report renders the summary, sessions and calls as markdown.
func Report(sum *query.Summary, sessions []*record.Session, calls []query.CallSummary) string {
	var b strings.Builder

	b.WriteString("# Call facts\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Sessions | %d (%d active, %d ended) |\n", sum.Sessions.Total, sum.Sessions.Active, sum.Sessions.Ended)
	fmt.Fprintf(&b, "| Facts | %d |\n", sum.TotalInformation)
	fmt.Fprintf(&b, "| Calls | %d |\n", sum.TotalCallLogs)
	if sum.LastUpdated != nil {
		fmt.Fprintf(&b, "| Last updated | %s |\n", sum.LastUpdated.Format(time.RFC3339))
	}

	if len(sum.Categories) > 0 {
		b.WriteString("\n## Facts by category\n\n")
		b.WriteString("| Category | Facts |\n|---|---|\n")
		for _, cat := range slices.Sorted(maps.Keys(sum.Categories)) {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(cat), sum.Categories[cat])
		}
	}

	b.WriteString("\n## Sessions\n\n")
	if len(sessions) == 0 {
		b.WriteString("_No sessions yet._\n")
	} else {
		b.WriteString("| Session | Caller | Status | Facts | Last activity |\n|---|---|---|---|---|\n")
		for _, s := range sessions {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
				cell(s.SessionID),
				cell(s.CallerID),
				s.Status,
				s.InformationCount,
				s.LastActivity.Format(time.RFC3339),
			)
		}
	}

	b.WriteString("\n## Calls\n\n")
	if len(calls) == 0 {
		b.WriteString("_No calls have ended yet._\n")
	} else {
		b.WriteString("| Caller | Reason | Outcome | Duration | Facts |\n|---|---|---|---|---|\n")
		for _, c := range calls {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
				cell(c.CallerID),
				cell(c.Reason),
				c.Qualification,
				(time.Duration(c.Duration) * time.Second).String(),
				c.InformationSharedCount,
			)
		}
	}

	return b.String()
}

// cell makes free text safe for a markdown table cell.
func cell(s string) string {
	s = strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
	return utils.Truncate(s, previewLen)
}

// Package watchcmder provides the watch command, which follows the live
// record event stream of a running callfacts server.
package watchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/sse"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/utils"
)

const previewLen = 60

type watchCommander struct {
	apiTarget string
	sessionID string
	raw       bool
}

const watchLongDesc string = `Follow the live record events of a running server.

Prints one line per committed write: each shared fact and each ended call.
Requires a running callfacts server. Use --raw to print the event stream as
it arrives on the wire.

Examples:
  callfacts watch
  callfacts watch --session-id <id>
  callfacts watch --api-target http://localhost:9000 --raw`

const watchShortDesc string = "Follow live record events"

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := storeopen.LoadConfig(cmd, []string{config.FlagAPITarget})
			if err != nil {
				return err
			}
			cmder.apiTarget = cfg.Client.APITarget
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVar(&cmder.sessionID, "session-id", "", "Only show events for this session")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the raw event stream")

	return cmd
}

func (c *watchCommander) run(ctx context.Context, out io.Writer) error {
	eventsURL, err := url.Parse(c.apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	eventsURL.Path = "/api/events"
	if c.sessionID != "" {
		q := eventsURL.Query()
		q.Set("session_id", c.sessionID)
		eventsURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eventsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("creating events request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to callfacts API at %s: %w", c.apiTarget, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("events request failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	tee := io.Discard
	if c.raw {
		tee = out
	}
	reader := sse.NewTeeReader(resp.Body, tee)

	for {
		ev, err := reader.Next()
		if err != nil {
			// A cancelled watch is a normal exit.
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading events: %w", err)
		}
		if ev == nil {
			return nil
		}
		if c.raw {
			continue
		}

		var payload eventstream.RecordEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			fmt.Fprintf(out, "  %s %s\n", cliui.FailMark, cliui.DimStyle.Render("unreadable event "+ev.ID))
			continue
		}
		fmt.Fprintln(out, FormatEvent(&payload))
	}
}

// FormatEvent renders one record event as a single terminal line.
func FormatEvent(ev *eventstream.RecordEvent) string {
	stamp := cliui.DimStyle.Render(ev.EmittedAt.Local().Format(time.TimeOnly))
	caller := cliui.KeyStyle.Render(ev.CallerID)

	switch {
	case ev.Information != nil:
		text := utils.Truncate(strings.ReplaceAll(ev.Information.Information, "\n", " "), previewLen)
		line := fmt.Sprintf("  %s  %s  %s %s",
			stamp,
			caller,
			cliui.StepStyle.Render("["+ev.Information.Category+"]"),
			cliui.ValueStyle.Render(text),
		)
		if ev.SessionCreated {
			line += " " + cliui.DimStyle.Render("(new session "+ev.SessionID+")")
		}
		return line
	case ev.CallLog != nil:
		return fmt.Sprintf("  %s  %s  %s call ended: %s %s",
			stamp,
			caller,
			cliui.SuccessMark,
			cliui.ValueStyle.Render(ev.CallLog.Reason),
			cliui.DimStyle.Render(fmt.Sprintf("(%s, %d facts)",
				(time.Duration(ev.CallLog.Duration)*time.Second).String(),
				ev.CallLog.InformationSharedCount,
			)),
		)
	default:
		return fmt.Sprintf("  %s  %s  %s", stamp, caller, cliui.DimStyle.Render(ev.EventType))
	}
}

// Package snapshotcmder provides the snapshot command for exporting the whole
// store as JSON and restoring it.
package snapshotcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts/storeopen"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/cliui"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

const snapshotLongDesc string = `Export or restore the whole store.

A snapshot is one JSON document holding every session, information record and
call log. Exporting never observes a half-applied write. Importing validates
the snapshot first and replaces the store's contents in one step.

Examples:
  callfacts snapshot export > backup.json
  callfacts snapshot export backup.json --storage sqlite
  callfacts snapshot import backup.json --storage postgres --postgres-dsn <dsn>`

const snapshotShortDesc string = "Export or restore the whole store"

// ErrStoreNotEmpty is returned by import when the target store has data and
// --force is not set.
var ErrStoreNotEmpty = errors.New("store is not empty, use --force to replace it")

func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: snapshotShortDesc,
		Long:  snapshotLongDesc,
	}

	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newImportCmd())

	return cmd
}

type storeCommander struct {
	flags     config.Config
	cfg       *config.Config
	configDir string
}

func (c *storeCommander) bind(cmd *cobra.Command) {
	storeopen.AddStorageFlags(cmd, &c.flags.Storage)
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		c.cfg, c.configDir, err = storeopen.LoadConfig(cmd, config.StorageFlags)
		return err
	}
}

func (c *storeCommander) open(ctx context.Context) (storage.Driver, error) {
	return storeopen.Open(ctx, c.cfg.Storage, c.configDir, logger.Nop())
}

func newExportCmd() *cobra.Command {
	cmder := &storeCommander{}

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the store as a JSON snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			driver, err := cmder.open(ctx)
			if err != nil {
				return err
			}
			defer driver.Close()

			snap, err := driver.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("taking snapshot: %w", err)
			}

			if len(args) == 0 {
				return writeSnapshot(cmd.OutOrStdout(), snap)
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating snapshot file: %w", err)
			}
			if err := writeSnapshot(f, snap); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing snapshot file: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "  %s Exported %s sessions to %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(strconv.Itoa(len(snap.Sessions))),
				cliui.DimStyle.Render(args[0]),
			)
			return nil
		},
	}

	cmder.bind(cmd)
	return cmd
}

func newImportCmd() *cobra.Command {
	cmder := &storeCommander{}
	var force bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the store with a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			snap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}

			driver, err := cmder.open(ctx)
			if err != nil {
				return err
			}
			defer driver.Close()

			if !force {
				current, err := driver.Snapshot(ctx)
				if err != nil {
					return fmt.Errorf("reading store: %w", err)
				}
				if len(current.Sessions) > 0 {
					return ErrStoreNotEmpty
				}
			}

			err = cliui.Step(cmd.ErrOrStderr(), "Importing snapshot", func() error {
				return driver.Load(ctx, snap)
			})
			if err != nil {
				return fmt.Errorf("importing snapshot: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "\n  %s Imported %s sessions %s\n\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(strconv.Itoa(len(snap.Sessions))),
				cliui.DimStyle.Render(fmt.Sprintf("(%d facts, %d calls)", len(snap.Information), len(snap.CallLogs))),
			)
			return nil
		},
	}

	cmder.bind(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace a store that already has data")
	return cmd
}

func writeSnapshot(w io.Writer, snap *record.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

func readSnapshot(path string) (*record.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}

	var snap record.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, storage.CorruptStoreError{Source: path, Err: err}
	}
	return &snap, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

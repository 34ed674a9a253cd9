package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/linerelay/internal/app"
	"github.com/antoniostano/linerelay/internal/history"
	"github.com/antoniostano/linerelay/internal/policy"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear persisted conversation histories",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryClearCmd())
	return cmd
}

// withStore opens the configured history store for one command and closes it
// afterwards.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *history.Store) error) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := app.OpenHistory(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	runErr := fn(ctx, store)
	if err := store.Close(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users with a stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *history.Store) error {
				ids, err := store.Users(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "No stored histories.")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			})
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *history.Store) error {
				turns := store.Get(ctx, args[0])
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(turns)
				}
				if len(turns) == 0 {
					fmt.Fprintf(out, "No history for %s.\n", args[0])
					return nil
				}
				for _, t := range turns {
					fmt.Fprintf(out, "%s  %-9s %s\n", t.Timestamp.Local().Format(time.DateTime), t.Role, policy.Preview(t.Content, 200))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print turns as JSON")
	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <user-id>",
		Short: "Delete a user's stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *history.Store) error {
				if err := store.Clear(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for %s.\n", args[0])
				return nil
			})
		},
	}
}

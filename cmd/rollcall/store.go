package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and reconcile sync status",
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List keys pending or failed reconciliation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pending, err := rt.Store.ListPendingKeys(ctx)
		if err != nil {
			return err
		}
		errored, err := rt.Store.ListErrorKeys(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, map[string][]string{"pending": pending, "errored": errored})
		}
		out := cmd.OutOrStdout()
		for _, k := range pending {
			fmt.Fprintf(out, "pending\t%s\n", k)
		}
		for _, k := range errored {
			fmt.Fprintf(out, "error\t%s\n", k)
		}
		return nil
	},
}

var storeSyncedCmd = &cobra.Command{
	Use:   "mark-synced <key>...",
	Short: "Mark keys as reconciled",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range args {
			if err := rt.Store.MarkSynced(cmd.Context(), k); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeStatusCmd, storeSyncedCmd)
}

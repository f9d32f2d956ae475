package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Manage artifact retention",
}

var retentionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete artifacts older than each tenant's retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			sum, err := a.scheduler.RunRetention(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(sum)
			}

			for _, res := range sum.Tenants {
				fmt.Printf("  %s: %d of %d objects deleted (cutoff %s)\n",
					res.TenantID, res.DeletedCount, res.Scanned, res.Cutoff.Format("2006-01-02"))
				for _, key := range sortedKeys(res.Failed) {
					fmt.Printf("    ✗ %s: %s\n", key, res.Failed[key])
				}
			}
			for _, tenant := range sortedKeys(sum.Failed) {
				fmt.Printf("  ✗ %s: %s\n", tenant, sum.Failed[tenant])
			}
			fmt.Printf("✓ Retention sweep finished, %d objects deleted\n", sum.Deleted)

			if len(sum.Failed) > 0 {
				return fmt.Errorf("retention failed for %d tenants", len(sum.Failed))
			}
			return nil
		})
	},
}

func init() {
	retentionCmd.AddCommand(retentionSweepCmd)
	retentionSweepCmd.Flags().Bool("json", false, "Print the summary as JSON")
}

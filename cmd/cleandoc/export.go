package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/delivery"
	"github.com/cleanidoc/cleandoc/pkg/export"
	"github.com/cleanidoc/cleandoc/pkg/scheduler"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run and inspect daily exports",
}

var exportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate the export of one tenant and date",
	Long: `Generate, store and deliver the export of one tenant and report date.

Examples:
  # Yesterday's export with the tenant's defaults
  cleandoc export run --tenant acme

  # A specific day, CSV only, without delivery
  cleandoc export run --tenant acme --date 2026-03-01 --no-pdf --skip-delivery`,
	RunE: runExport,
}

var exportDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run the daily export job for every enabled tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			sum, err := a.scheduler.RunDaily(ctx, date)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(sum)
			}

			fmt.Printf("Daily export for %s\n", sum.ReportDate)
			fmt.Printf("  Exported: %d\n", len(sum.Exported))
			fmt.Printf("  Skipped:  %d\n", len(sum.Skipped))
			fmt.Printf("  Failed:   %d\n", len(sum.Failed))
			for _, tenant := range sortedKeys(sum.Failed) {
				fmt.Printf("    %s: %s\n", tenant, sum.Failed[tenant])
			}
			if len(sum.Failed) > 0 {
				return fmt.Errorf("%d tenant exports failed", len(sum.Failed))
			}
			return nil
		})
	},
}

var exportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the exports of a tenant, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, err := a.store.ListExports(ctx, tenant, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No exports found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tSTATUS\tLOGS\tFILES\tSIZE\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.ReportDate, r.Status, r.TotalLogs, len(r.Artifacts),
					r.TotalSizeBytes, r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

var exportLinksCmd = &cobra.Command{
	Use:   "links EXPORT_ID",
	Short: "Issue fresh download links for a completed export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			links, err := a.exporter.IssueLinks(ctx, args[0], ttl)
			if err != nil {
				return err
			}
			return printJSON(links)
		})
	},
}

var exportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an export is running and its stored record",
	Long: `Show whether the export of a tenant and date is running and print its
stored record.

Runs in other processes are only visible with lock.driver=redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		date, _ := cmd.Flags().GetString("date")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if date == "" {
				date = scheduler.Yesterday(time.Now(), a.cfg.Location())
			}
			st, err := a.exporter.Status(ctx, tenant, date)
			if err != nil {
				return err
			}
			return printJSON(st)
		})
	},
}

func init() {
	exportCmd.AddCommand(exportRunCmd)
	exportCmd.AddCommand(exportStatusCmd)
	exportCmd.AddCommand(exportDailyCmd)
	exportCmd.AddCommand(exportListCmd)
	exportCmd.AddCommand(exportLinksCmd)

	exportRunCmd.Flags().String("tenant", "", "Tenant ID (required)")
	exportRunCmd.Flags().String("date", "", "Report date YYYY-MM-DD (defaults to yesterday)")
	exportRunCmd.Flags().Bool("no-pdf", false, "Skip the PDF report")
	exportRunCmd.Flags().Bool("no-csv", false, "Skip the CSV files")
	exportRunCmd.Flags().StringSlice("channel", nil, "Restrict delivery to these channels (email, sftp, webhook)")
	exportRunCmd.Flags().Bool("skip-delivery", false, "Store the export without delivering it")
	exportRunCmd.Flags().Bool("json", false, "Print the result as JSON")
	_ = exportRunCmd.MarkFlagRequired("tenant")

	exportDailyCmd.Flags().String("date", "", "Report date YYYY-MM-DD (defaults to yesterday)")
	exportDailyCmd.Flags().Bool("json", false, "Print the summary as JSON")

	exportListCmd.Flags().String("tenant", "", "Tenant ID (required)")
	exportListCmd.Flags().Int("limit", 20, "Maximum number of exports")
	exportListCmd.Flags().Bool("json", false, "Print the records as JSON")
	_ = exportListCmd.MarkFlagRequired("tenant")

	exportStatusCmd.Flags().String("tenant", "", "Tenant ID (required)")
	exportStatusCmd.Flags().String("date", "", "Report date YYYY-MM-DD (defaults to yesterday)")
	_ = exportStatusCmd.MarkFlagRequired("tenant")

	exportLinksCmd.Flags().Duration("ttl", 0, "Link lifetime (defaults to objectstore.link_ttl)")
}

func runExport(cmd *cobra.Command, args []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	date, _ := cmd.Flags().GetString("date")
	asJSON, _ := cmd.Flags().GetBool("json")

	opts, err := exportOptions(cmd)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if date == "" {
			date = scheduler.Yesterday(time.Now(), a.cfg.Location())
		}

		fmt.Fprintf(os.Stderr, "Exporting %s for %s...\n", tenant, date)
		res, err := a.exporter.GenerateDailyExport(ctx, tenant, date, opts)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}
		printResult(res)
		return nil
	})
}

// exportOptions maps the run flags onto export.Options. Flags that were
// not set leave the tenant defaults in place.
func exportOptions(cmd *cobra.Command) (export.Options, error) {
	var opts export.Options
	if cmd.Flags().Changed("no-pdf") {
		noPDF, _ := cmd.Flags().GetBool("no-pdf")
		include := !noPDF
		opts.IncludePDF = &include
	}
	if cmd.Flags().Changed("no-csv") {
		noCSV, _ := cmd.Flags().GetBool("no-csv")
		include := !noCSV
		opts.IncludeCSV = &include
	}
	opts.SkipDelivery, _ = cmd.Flags().GetBool("skip-delivery")

	channels, _ := cmd.Flags().GetStringSlice("channel")
	for _, name := range channels {
		ch, err := delivery.ParseChannel(name)
		if err != nil {
			return export.Options{}, err
		}
		opts.DeliveryChannels = append(opts.DeliveryChannels, ch)
	}
	return opts, nil
}

func printResult(res *export.Result) {
	fmt.Printf("✓ Export %s %s in %dms\n", res.ExportID, res.Status, res.ProcessingTimeMs)
	fmt.Printf("  Logs: %d (%d completed, %d failed)\n",
		res.Stats.TotalLogs, res.Stats.CompletedLogs, res.Stats.FailedLogs)
	fmt.Printf("  Steps: %d  Photos: %d\n", res.Stats.TotalSteps, res.Stats.TotalPhotos)
	fmt.Printf("  Links expire: %s\n", res.LinksExpireAt.Format(time.RFC3339))

	kinds := make([]string, 0, len(res.DownloadURLs))
	for kind := range res.DownloadURLs {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-10s %s\n", kind, res.DownloadURLs[types.ArtifactKind(kind)])
	}

	if res.Delivery != nil {
		for _, ch := range res.Delivery.Failed() {
			fmt.Printf("  ✗ delivery via %s failed\n", ch)
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dvloznov/openfinance-sync/internal/banksync"
	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(deleteItemCmd)
	rootCmd.AddCommand(warehouseReportCmd)

	warehouseReportCmd.Flags().IntP("months", "m", 6, "Number of months to include")
}

// ─── sync ───────────────────────────────────────────────────────────────────

var syncCmd = &cobra.Command{
	Use:   "sync ITEM_ID",
	Short: "Run one sync job inline",
	Long: `Create a sync job for the item and run it in this process, bypassing the
queue. The job record is written exactly as for an API-triggered sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	user, err := requireUser(cmd)
	if err != nil {
		return err
	}
	ctx, a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := checkOwner(ctx, a.Pluggy, user, args[0]); err != nil {
		return err
	}

	now := time.Now()
	job := &jobs.SyncJob{
		ID:        uuid.New().String(),
		UserID:    user,
		ItemID:    args[0],
		Status:    jobs.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	runErr := a.Orchestrator.Run(ctx, jobs.SyncRequest{JobID: job.ID, UserID: user, ItemID: job.ItemID})

	final, err := a.Jobs.GetJob(ctx, user, job.ID)
	if err != nil {
		return err
	}
	if err := printJSON(final); err != nil {
		return err
	}
	return runErr
}

// ─── job ────────────────────────────────────────────────────────────────────

var jobCmd = &cobra.Command{
	Use:   "job JOB_ID",
	Short: "Show a sync job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		docs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer docs.Close()

		job, err := jobs.NewStore(docs).GetJob(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

// ─── accounts ───────────────────────────────────────────────────────────────

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List stored accounts of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		docs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer docs.Close()

		snaps, err := docs.List(cmd.Context(), docstore.UserCollection(user, domain.CollectionAccounts))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tBUCKET\tNAME\tBALANCE\tUSED LIMIT\tLAST SYNC")
		for _, s := range snaps {
			var acc domain.Account
			if err := s.DataTo(&acc); err != nil {
				return err
			}
			used := "-"
			if acc.CreditFields != nil {
				used = domain.FormatAmount(acc.UsedCreditLimit, acc.CurrencyCode)
			}
			synced := "never"
			if acc.TransactionsSyncedAt != nil {
				synced = acc.TransactionsSyncedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				acc.ID, acc.Bucket, acc.Name, domain.FormatAmount(acc.Balance, acc.CurrencyCode), used, synced)
		}
		return tw.Flush()
	},
}

// ─── delete-item ────────────────────────────────────────────────────────────

var deleteItemCmd = &cobra.Command{
	Use:   "delete-item ITEM_ID",
	Short: "Delete an item at the aggregator and its stored accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		ctx, a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		itemID := args[0]
		switch err := checkOwner(ctx, a.Pluggy, user, itemID); {
		case err == nil:
			if err := a.Pluggy.DeleteItem(ctx, itemID); err != nil && !isNotFound(err) {
				return err
			}
		case isNotFound(err):
			// Gone upstream; only local records remain.
		default:
			return err
		}

		removed, err := banksync.RemoveItem(ctx, a.Docs, user, itemID)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted item %s (%d accounts removed).\n", itemID, removed)
		return nil
	},
}

// ─── warehouse-report ───────────────────────────────────────────────────────

var warehouseReportCmd = &cobra.Command{
	Use:   "warehouse-report",
	Short: "Print monthly category totals from the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		months, _ := cmd.Flags().GetInt("months")

		ctx, a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Warehouse == nil {
			return fmt.Errorf("warehouse export is disabled; set [warehouse] enabled = true")
		}

		if months < 1 {
			months = 1
		}
		now := time.Now()
		from := civil.DateOf(time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC))

		rows, err := a.Warehouse.MonthlySummary(ctx, user, from)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MONTH\tCATEGORY\tDIRECTION\tTOTAL\tCOUNT")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Month, r.Category, r.Direction, r.Total.FloatString(2), r.Count)
		}
		return tw.Flush()
	},
}

// checkOwner fails unless the item was connected by user.
func checkOwner(ctx context.Context, client *pluggy.Client, user, itemID string) error {
	item, err := client.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.ClientUserID != user {
		return fmt.Errorf("item %s does not belong to user %s", itemID, user)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *pluggy.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/repository/postgres"
	"github.com/nkiryanov/settlement/internal/service/transfer"
	"github.com/nkiryanov/settlement/internal/service/withdrawal"
)

const defaultPendingBatch = 100

func processCmd(opts *rootOptions, getenv func(string) string) *cobra.Command {
	var (
		all    bool
		payout transfer.Config
	)

	cmd := &cobra.Command{
		Use:   "process [withdrawal-id]",
		Short: "Send pending withdrawals to the payout provider",
		Long: `Process one withdrawal by id or, with --pending, every pending withdrawal once.
Withdrawals the provider can't take right now stay pending.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, l, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			client, err := transfer.NewClient(payout, l)
			if err != nil {
				return err
			}
			svc := withdrawal.NewService(withdrawal.Config{}, postgres.NewStorage(pool), client, l)

			var ids []uuid.UUID
			if all {
				pending, err := svc.ListPending(ctx, defaultPendingBatch)
				if err != nil {
					return err
				}
				for _, w := range pending {
					ids = append(ids, w.ID)
				}
			} else {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid withdrawal id %q: %w", args[0], err)
				}
				ids = append(ids, id)
			}

			out := cmd.OutOrStdout()
			var errs []error
			for _, id := range ids {
				w, err := svc.Process(ctx, id)
				if err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", id, w.Status, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "%s %s%s\n", id, w.Status, detail(w))
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&all, "pending", false, "Process every pending withdrawal")
	cmd.Flags().StringVar(&payout.BaseURL, "payout-api", valueOrDefault(getenv("PAYOUT_API_URL"), "https://api.whop.com"), "Payout provider API url")
	cmd.Flags().StringVar(&payout.APIKey, "payout-api-key", getenv("PAYOUT_API_KEY"), "Payout provider API key")
	cmd.Flags().StringVar(&payout.OriginID, "payout-origin", getenv("PAYOUT_ORIGIN_ID"), "Platform account payouts are sent from")
	cmd.Flags().DurationVar(&payout.Timeout, "transfer-timeout", 10*time.Second, "Timeout of one payout provider call")

	return cmd
}

func detail(w models.Withdrawal) string {
	switch {
	case w.TransferID != nil:
		return " transfer " + *w.TransferID
	case w.FailureReason != nil:
		return " reason: " + *w.FailureReason
	default:
		return ""
	}
}

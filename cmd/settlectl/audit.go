package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/settlement/internal/repository/postgres"
	"github.com/nkiryanov/settlement/internal/service/ledger"
)

func auditCmd(opts *rootOptions) *cobra.Command {
	var seller string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay order and withdrawal history and compare with stored balances",
		Long: `Recompute every seller balance from orders and withdrawals and report
sellers whose stored counters differ. Exits with error if any differ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, l, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := ledger.NewService(postgres.NewStorage(pool), l)

			var found []ledger.Discrepancy
			if seller != "" {
				id, err := uuid.Parse(seller)
				if err != nil {
					return fmt.Errorf("invalid seller id %q: %w", seller, err)
				}
				d, err := svc.Audit(ctx, id)
				if err != nil {
					return err
				}
				if d != nil {
					found = append(found, *d)
				}
			} else {
				found, err = svc.AuditAll(ctx)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, d := range found {
				fmt.Fprintf(out, "%s available %s != %s, pending %s != %s, total_earned %s != %s\n",
					d.SellerID,
					d.Stored.Available, d.Replayed.Available,
					d.Stored.Pending, d.Replayed.Pending,
					d.Stored.TotalEarned, d.Replayed.TotalEarned,
				)
			}

			if len(found) > 0 {
				return fmt.Errorf("%d seller balances differ from history", len(found))
			}
			fmt.Fprintln(out, "balances consistent")
			return nil
		},
	}

	cmd.Flags().StringVar(&seller, "seller", "", "Audit one seller only")

	return cmd
}

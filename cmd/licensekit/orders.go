package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/licensekit/pkg/payment"
)

func newOrdersCmd(l *loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and resolve orders in the ledger",
	}
	cmd.AddCommand(
		newOrdersListCmd(l),
		newOrdersResolveCmd(l),
		newOrdersSweepCmd(l),
	)
	return cmd
}

// withLedger opens the stores and hands a ledger-only coordinator to fn.
func withLedger(ctx context.Context, l *loader, fn func(*payment.Coordinator) error) error {
	var cfg opsConfig
	if err := loadConfig(l, &cfg); err != nil {
		return err
	}

	log := newLogger(cfg.Logger)
	d, err := openDeps(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer d.close(context.WithoutCancel(ctx))

	coord, err := newCoordinator(d, offlineProvider{name: cfg.Payments.Payment.Provider}, cfg.Payments, nil, log)
	if err != nil {
		return err
	}
	return fn(coord)
}

func newOrdersListCmd(l *loader) *cobra.Command {
	var (
		states []string
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := payment.OrderFilter{UserID: userID, Limit: limit}
			for _, s := range states {
				filter.States = append(filter.States, payment.State(s))
			}

			return withLedger(cmd.Context(), l, func(c *payment.Coordinator) error {
				orders, err := c.Orders(cmd.Context(), filter)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORDER\tSTATE\tPLAN\tAMOUNT\tUSER\tATTEMPTS\tCREATED")
				for _, o := range orders {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						o.ID, o.State, o.PlanType, o.Amount, o.UserID, o.CaptureAttempts,
						o.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringSliceVar(&states, "state", nil, "filter by state (repeatable)")
	cmd.Flags().StringVar(&userID, "user", "", "filter by buyer user id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of orders")
	return cmd
}

func newOrdersResolveCmd(l *loader) *cobra.Command {
	var captured, rejected bool

	cmd := &cobra.Command{
		Use:   "resolve <order-id>",
		Short: "Record the verdict on an order awaiting verification",
		Long: `Resolves an order in needs_verification, or a captured order whose
license was not written. --captured issues the license; --rejected fails the
order. Confirm the payment in the provider dashboard first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), l, func(c *payment.Coordinator) error {
				res, err := c.ResolveManually(cmd.Context(), args[0], captured)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s: %s\n", res.OrderID, res.State)
				if captured {
					fmt.Fprintf(cmd.OutOrStdout(), "license %s issued\n", res.LicenseID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&captured, "captured", false, "the money was captured")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "the capture did not happen")
	cmd.MarkFlagsOneRequired("captured", "rejected")
	cmd.MarkFlagsMutuallyExclusive("captured", "rejected")
	return cmd
}

func newOrdersSweepCmd(l *loader) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Abandon orders that were never approved",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd.Context(), l, func(c *payment.Coordinator) error {
				n, err := c.SweepAbandoned(cmd.Context(), olderThan)
				fmt.Fprintf(cmd.OutOrStdout(), "%d orders abandoned\n", n)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (default PAYMENT_ABANDON_AFTER)")
	return cmd
}

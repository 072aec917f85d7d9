package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/fatflowers/paydesk/internal/models"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the renewal sweep and reminders once",
		Long: `Run one renewal sweep now. The sweep takes the same lease as the
scheduled run, so it refuses to start while another node is sweeping.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, d deps) error {
				rep, err := d.sweeper.Run(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "due=%d advanced=%d submitted=%d failed=%d reminded=%d\n",
					rep.Due, rep.Advanced, rep.Submitted, rep.Failed, rep.Reminded)
				return err
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the gateway for stale pending orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, d deps) error {
				if !cmd.Flags().Changed("older-than") {
					olderThan = d.cfg.Reconcile.PendingAfter
				}
				sum, err := d.reconciler.ReconcilePending(ctx, olderThan, limit)
				fmt.Fprintf(cmd.OutOrStdout(), "checked=%d changed=%d failed=%d\n", sum.Checked, sum.Changed, sum.Failed)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Only orders created before now minus this")
	cmd.Flags().IntVarP(&limit, "limit", "n", 500, "Maximum orders to check")
	return cmd
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll [tracking-id]",
		Short: "Fetch the live status of one payment and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, d deps) error {
				out, err := d.reconciler.Replay(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s changed=%t\n", out.Order.Reference, out.Status, out.Changed)
				return nil
			})
		},
	}
}

func replayCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay gateway callbacks whose handling failed",
		Long: `Re-poll the gateway for every tracking id with a failed callback log
entry and apply the live status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, d deps) error {
				failed, err := d.callbacks.Failed(ctx, limit)
				if err != nil {
					return err
				}
				ids := lo.Uniq(lo.FilterMap(failed, func(c *models.CallbackLog, _ int) (string, bool) {
					return c.TrackingID, c.TrackingID != ""
				}))
				var errs []error
				for _, id := range ids {
					out, err := d.reconciler.Replay(ctx, id)
					if err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s error: %v\n", id, err)
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s changed=%t\n", id, out.Order.Reference, out.Status, out.Changed)
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum failed entries to replay")
	return cmd
}

func registerIPNCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register-ipn [url]",
		Short: "Register the payment callback URL with the gateway",
		Long: `Register the payment callback URL with the gateway and print the
IPN id to put into gateway.ipn_id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, d deps) error {
				id, err := d.gateway.RegisterIPN(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

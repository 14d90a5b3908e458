package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/app/repository"
)

const commandTimeout = 30 * time.Second

func newRootCmd(open func() (*backend, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "orderctl",
		Short:         "Inspect and advance NumeroFox orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(showCmd(open))
	root.AddCommand(transitionsCmd(open))
	root.AddCommand(kickCmd(open))
	root.AddCommand(stalledCmd(open))
	return root
}

func showCmd(open func() (*backend, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id|code]",
		Short: "Print an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			order, err := findOrder(ctx, b.Orders, args[0])
			if err != nil {
				return err
			}
			printOrder(cmd.OutOrStdout(), order)
			return nil
		},
	}
}

func transitionsCmd(open func() (*backend, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "transitions [id|code]",
		Short: "Print the audit trail of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			order, err := findOrder(ctx, b.Orders, args[0])
			if err != nil {
				return err
			}
			transitions, err := b.Orders.ListTransitions(ctx, order.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tFROM\tTO\tATTEMPT\tREASON")
			for _, t := range transitions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", t.CreatedAt.UTC().Format(time.RFC3339), t.FromState, t.ToState, t.Attempt, t.Reason)
			}
			return w.Flush()
		},
	}
}

func kickCmd(open func() (*backend, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kick [id|code]",
		Short: "Enqueue an immediate advance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			order, err := findOrder(ctx, b.Orders, args[0])
			if err != nil {
				return err
			}
			if order.State.IsTerminal() {
				force, _ := cmd.Flags().GetBool("force")
				if !force {
					return fmt.Errorf("order %s is %s, use --force to enqueue anyway", order.Code, order.State)
				}
			}
			if err := b.Scheduler.ScheduleAdvance(ctx, order.ID, 0, "orderctl kick"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled advance for %s (%s)\n", order.Code, order.State)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Enqueue even if the order is terminal")
	return cmd
}

func stalledCmd(open func() (*backend, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stalled",
		Short: "List paid orders that stopped moving",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			limit, _ := cmd.Flags().GetInt("limit")
			enqueue, _ := cmd.Flags().GetBool("enqueue")

			now := b.Now()
			orders, err := b.Orders.ListStalled(ctx, now, now.Add(-b.StallAfter), limit)
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stalled orders")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tID\tSTATE\tUPDATED\tNEXT ATTEMPT")
			for _, o := range orders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Code, o.ID, o.State, o.UpdatedAt.UTC().Format(time.RFC3339), formatTime(o.NextAttemptAt))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if enqueue {
				for _, o := range orders {
					if err := b.Scheduler.ScheduleAdvance(ctx, o.ID, 0, "orderctl reconcile"); err != nil {
						return fmt.Errorf("schedule %s: %w", o.Code, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %d orders\n", len(orders))
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 50, "Maximum orders to list")
	cmd.Flags().Bool("enqueue", false, "Schedule an advance for every listed order")
	return cmd
}

// findOrder accepts an order id or its short code.
func findOrder(ctx context.Context, orders repository.OrderReader, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	order, err := orders.GetByID(ctx, ref)
	if errors.Is(err, repository.ErrOrderNotFound) {
		order, err = orders.GetByCode(ctx, ref)
	}
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("no order with id or code %q", ref)
	}
	return order, err
}

func printOrder(out io.Writer, o *models.Order) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", o.ID)
	fmt.Fprintf(w, "Code:\t%s\n", o.Code)
	fmt.Fprintf(w, "User:\t%s\n", o.UserID)
	fmt.Fprintf(w, "Report:\t%s\n", o.ReportType)
	fmt.Fprintf(w, "State:\t%s\n", o.State)
	fmt.Fprintf(w, "Price:\t%d %s\n", o.PriceAmount, o.Currency)
	fmt.Fprintf(w, "Paid at:\t%s\n", formatTime(o.PaidAt))
	fmt.Fprintf(w, "Attempts:\tcompute=%d interpret=%d render=%d\n", o.ComputeAttempts, o.InterpretAttempts, o.RenderAttempts)
	fmt.Fprintf(w, "Next attempt:\t%s\n", formatTime(o.NextAttemptAt))
	if o.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", o.LastError)
	}
	if o.DocumentRef != nil {
		fmt.Fprintf(w, "Document:\t%s\n", *o.DocumentRef)
	}
	fmt.Fprintf(w, "Delivered at:\t%s\n", formatTime(o.DeliveredAt))
	_ = w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

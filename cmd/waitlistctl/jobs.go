package main

import (
	"fmt"

	"evently-waitlist/internal/app"
	"evently-waitlist/internal/waitlist"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued release, sweep and bulk tasks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return a.RunWorker()
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue offers once and re-release their tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Engine.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newRecalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalc EVENT_ID...",
		Short: "Recompute waitlist positions for one or more events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				for _, id := range ids {
					result, err := a.Engine.Recalculator.Recalculate(cmd.Context(), id)
					if err != nil {
						return fmt.Errorf("event %s: %w", id, err)
					}
					if err := printJSON(cmd, result); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newReleaseCmd() *cobra.Command {
	var (
		tickets  int
		reason   string
		sections []string
	)

	c := &cobra.Command{
		Use:   "release EVENT_ID",
		Short: "Offer tickets to the best-placed waitlist entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Engine.Releases.Release(cmd.Context(), waitlist.ReleaseRequest{
					EventID:          ids[0],
					AvailableTickets: tickets,
					Reason:           waitlist.ReleaseReason(reason),
					SeatSections:     sections,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}

	c.Flags().IntVar(&tickets, "tickets", 0, "number of tickets to release (required)")
	c.Flags().StringVar(&reason, "reason", string(waitlist.ReleaseReasonManual), "release reason")
	c.Flags().StringSliceVar(&sections, "sections", nil, "seat sections the tickets belong to")
	_ = c.MarkFlagRequired("tickets")
	return c
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid event id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

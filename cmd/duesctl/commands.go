package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/warp/club-dues/dues"
)

func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load a JSON or YAML fixture",
		Long:  `Load clubs, members, push tokens, exemptions and charges from a fixture file. Existing charges are left alone.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Seed(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s\n", args[0])
			return nil
		},
	}
}

func newGenerateCmd(c *cli) *cobra.Command {
	var club, asOf, period string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate monthly charges",
		Long: `Run daily generation as of --as-of (default today). With --period the
given month is billed regardless of each club's trigger day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := c.now(asOf)
			if err != nil {
				return err
			}
			var res dues.RunResult
			if period != "" {
				ym, err := dues.ParseYearMonth(period)
				if err != nil {
					return err
				}
				res, err = c.app.Jobs.GenerateForPeriod(cmd.Context(), dues.ClubID(club), ym, now)
				if err != nil {
					return err
				}
			} else {
				res, err = c.app.Jobs.Generate(cmd.Context(), dues.ClubID(club), now)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "as of %s: %d clubs triggered, %d created, %d skipped, %s\n",
				now.Format("2006-01-02"), res.ClubsTriggered, res.Created, res.Skipped, errorCount(res.Errors))
			return nil
		},
	}
	cmd.Flags().StringVar(&club, "club", "", "Restrict to one club")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Run as of this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&period, "period", "", "Bill this month (YYYY-MM)")
	return cmd
}

func newOverdueCmd(c *cli) *cobra.Command {
	var club, asOf string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Move past-due unpaid charges to overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := c.now(asOf)
			if err != nil {
				return err
			}
			res, err := c.app.Jobs.Overdue(cmd.Context(), dues.ClubID(club), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "as of %s: %d scanned, %d overdue, %s\n",
				now.Format("2006-01-02"), res.Scanned, res.Transitioned, errorCount(res.Errors))
			return nil
		},
	}
	cmd.Flags().StringVar(&club, "club", "", "Restrict to one club")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Run as of this date (YYYY-MM-DD)")
	return cmd
}

func newRemindCmd(c *cli) *cobra.Command {
	var club, asOf string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send due-soon reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := c.now(asOf)
			if err != nil {
				return err
			}
			res, err := c.app.Jobs.Remind(cmd.Context(), dues.ClubID(club), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "as of %s: %d scanned, %d in window, %d sent, %d without token, %d failed, %s\n",
				now.Format("2006-01-02"), res.Scanned, res.InWindow, res.Sent, res.NoToken, res.Failed, errorCount(res.Errors))
			return nil
		},
	}
	cmd.Flags().StringVar(&club, "club", "", "Restrict to one club")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Run as of this date (YYYY-MM-DD)")
	return cmd
}

func newChargesCmd(c *cli) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "charges <club-id>",
		Short: "List a club's charges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			clubID := dues.ClubID(args[0])
			if _, err := c.app.Store.GetClub(ctx, clubID); err != nil {
				return err
			}

			filter := dues.ChargeFilter{ClubID: clubID}
			var charges []dues.Charge
			var err error
			switch s := dues.ChargeStatus(status); s {
			case "":
				charges, err = c.app.Store.ListCharges(ctx, filter)
			case dues.StatusUnpaid, dues.StatusOverdue, dues.StatusPaid:
				charges, err = c.app.Store.ListChargesByStatus(ctx, s, filter)
			default:
				return fmt.Errorf("invalid --status %q: want unpaid, overdue or paid", status)
			}
			if err != nil {
				return err
			}

			printCharges(cmd.OutOrStdout(), charges)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only charges with this status")
	return cmd
}

func printCharges(out io.Writer, charges []dues.Charge) {
	if len(charges) == 0 {
		fmt.Fprintln(out, "No charges")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "USER\tTYPE\tPERIOD\tAMOUNT\tSTATUS\tREMINDERS")
	for _, ch := range charges {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%d\n",
			ch.UserID, ch.DuesType, ch.Period, ch.Amount.StringFixed(2), ch.Currency, statusLabel(ch.Status), ch.ReminderCount)
	}
	w.Flush()
}

func statusLabel(s dues.ChargeStatus) string {
	switch s {
	case dues.StatusOverdue:
		return color.RedString(string(s))
	case dues.StatusPaid:
		return color.GreenString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func errorCount(n int) string {
	if n == 0 {
		return "0 errors"
	}
	return color.RedString("%d errors", n)
}

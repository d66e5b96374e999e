package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/viego-wallet/viego-backend/internal/app"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/services"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

func newDispatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-reminders",
		Short: "Send every due reminder once and mark past-due payments overdue",
		Long: `Runs one bounded reminder scan against the configured stores.
Meant to be invoked by cron or a scheduler; concurrent runs are
serialised by a Redis lock and the losers exit without sending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			a, err := app.New(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Dispatcher.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var pan string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the merchant and transaction control types a card supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := cardNumber(pan)
			if err != nil {
				return err
			}
			workflow, err := opts.workflow()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			a := workflow.DiscoverAvailableControls(ctx, card)
			if a.MerchantErr != nil && a.TransactionErr != nil {
				return a.Err()
			}
			if !a.Complete() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: partial result: %v\n", a.Err())
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().StringVar(&pan, "pan", "", "card number")
	cmd.MarkFlagRequired("pan")
	return cmd
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var in controls.DecisionInput
	var amount string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Submit a synthetic authorization and print the verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := cardNumber(in.PAN)
			if err != nil {
				return err
			}
			money, err := models.NewMoney(amount)
			if err != nil {
				return err
			}
			in.PAN, in.Amount = card, money

			workflow, err := opts.workflow()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			result, err := workflow.SimulateDecision(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&in.PAN, "pan", "", "card number")
	cmd.Flags().StringVar(&amount, "amount", "", "purchase amount, e.g. 45.00")
	cmd.Flags().StringVar(&in.MerchantName, "merchant", "Viego Test Merchant", "merchant name")
	cmd.Flags().StringVar(&in.CategoryCode, "mcc", "5999", "merchant category code")
	cmd.Flags().StringVar(&in.CountryCode, "country", "", "merchant country code")
	cmd.Flags().StringVar(&in.CurrencyCode, "currency", "", "ISO 4217 numeric currency code")
	cmd.Flags().BoolVar(&in.CardPresent, "card-present", false, "simulate an in-store purchase")
	cmd.MarkFlagRequired("pan")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	var q controls.HistoryQuery
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Page through alerts sent for control documents or a vendor user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, err := opts.workflow()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			history, err := workflow.FetchAlertHistory(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), history)
		},
	}
	cmd.Flags().StringSliceVar(&q.DocumentIDs, "document", nil, "control document id (repeatable)")
	cmd.Flags().StringVar(&q.UserIdentifier, "user", "", "vendor user identifier")
	cmd.Flags().IntVar(&q.PageLimit, "limit", 10, "page size")
	cmd.Flags().IntVar(&q.StartIndex, "start", 0, "index of the first alert")
	return cmd
}

func newNextDueCmd(opts *rootOptions) *cobra.Command {
	var (
		frequency string
		dueDay    int
		from      string
		reminders []int
	)
	cmd := &cobra.Command{
		Use:   "next-due",
		Short: "Print the next due date of a schedule and its reminder dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := time.Now().UTC()
			if from != "" {
				t, err := time.Parse("2006-01-02", from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				ref = t
			}
			next, err := services.CalculateNextDueDate(models.Frequency(frequency), dueDay, ref)
			if err != nil {
				return err
			}
			if len(reminders) == 0 {
				reminders = opts.cfg.Reminder.DefaultDays
			}
			p := &models.AutomatedPayment{NextDueDate: next}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "next due: %s\n", next.Format("2006-01-02"))
			for _, r := range services.GenerateReminders(p, reminders) {
				fmt.Fprintf(out, "reminder: %s (%d days before)\n", r.ScheduledAt.Format("2006-01-02"), r.DaysBefore)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&frequency, "frequency", "monthly", "weekly|biweekly|monthly|quarterly|yearly")
	cmd.Flags().IntVar(&dueDay, "due-day", 0, "day of month for monthly schedules (0 = same day)")
	cmd.Flags().StringVar(&from, "from", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().IntSliceVar(&reminders, "remind", nil, "days before due to remind (default from config)")
	return cmd
}

func cardNumber(pan string) (string, error) {
	pan = utils.NormalizePAN(pan)
	if err := utils.ValidatePAN(pan); err != nil {
		return "", err
	}
	return pan, nil
}

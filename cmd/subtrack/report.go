package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/subtrack/subtrack/internal/config"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/money"
	"github.com/subtrack/subtrack/internal/pkg/postgres"
	"github.com/subtrack/subtrack/internal/subscriptions"
	subscriptionspostgres "github.com/subtrack/subtrack/internal/subscriptions/postgres"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		sortBy string
		desc   bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the owner's subscriptions and spending totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" || cfg.Owner.UserID == "" {
				return errors.New("database.url and owner.user_id are required")
			}
			loc, err := cfg.Owner.Location()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeout)
			defer cancel()

			db, err := postgres.Connect(ctx, postgres.Config{
				URL:             cfg.Database.URL,
				MaxOpenConns:    2,
				ConnectAttempts: 1,
			})
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			currency := cfg.Owner.Money()
			service := subscriptions.NewService(subscriptionspostgres.NewRepository(db), loc, currency.Symbol())

			subs, err := service.List(ctx, cfg.Owner.UserID, subscriptions.Filter{
				Status: subscriptions.Status(status),
				SortBy: subscriptions.SortField(sortBy),
				Desc:   desc,
			})
			if err != nil {
				return err
			}
			summary, err := service.Summary(ctx, cfg.Owner.UserID)
			if err != nil {
				return err
			}

			writeReport(cmd.OutOrStdout(), subs, summary, currency, time.Now().In(loc))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter: active, inactive or expiring")
	cmd.Flags().StringVar(&sortBy, "sort", string(subscriptions.SortByRenewalDate), "sort by renewal_date, name, price or category")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")

	return cmd
}

// writeReport renders the subscriptions table followed by the totals.
func writeReport(w io.Writer, subs []*domain.Subscription, sum domain.Summary, currency money.Currency, now time.Time) {
	_, _ = fmt.Fprintf(w, "%d subscriptions (%d active)\n\n", sum.TotalSubscriptions, sum.ActiveSubscriptions)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Category", "Billing", "Price", "Renews", "In", "Status"})

	for _, sub := range subs {
		status := text.FgGreen.Sprint("active")
		if !sub.IsActive {
			status = text.FgRed.Sprint("inactive")
		}
		t.AppendRow(table.Row{
			sub.Name,
			sub.Category.Label(),
			sub.BillingPeriod.Label(),
			currency.FormatWithSymbol(sub.Price, sub.Currency),
			sub.RenewalDate.Format(time.DateOnly),
			daysLabel(sub.DaysUntilRenewal(now)),
			status,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()

	totals := table.NewWriter()
	totals.SetOutputMirror(w)
	totals.SetStyle(table.StyleLight)
	totals.AppendRows([]table.Row{
		{"Monthly total", currency.Format(sum.MonthlyTotal)},
		{"Annual total", currency.Format(sum.AnnualTotal)},
		{"Monthly equivalent", currency.Format(sum.MonthlyEquivalent)},
		{"Projected annual", currency.Format(sum.ProjectedAnnual)},
	})
	for _, c := range sum.ByCategory {
		totals.AppendRow(table.Row{"  " + c.Category.Label(), currency.Format(c.Total)})
	}
	totals.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	_, _ = fmt.Fprintln(w)
	totals.Render()
}

func daysLabel(days int) string {
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "1 day"
	case days < 0:
		return fmt.Sprintf("%d days ago", -days)
	default:
		return fmt.Sprintf("%d days", days)
	}
}

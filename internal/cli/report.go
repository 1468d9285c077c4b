package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/smallbiznis/stockbook/internal/authorization"
	"github.com/spf13/cobra"
)

const defaultCriticalLimit = 50

// NewReportCommand groups reporting subcommands.
func NewReportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Sales, margin and stock reports",
	}
	cmd.AddCommand(newReportSummaryCommand(opts))
	cmd.AddCommand(newReportMonthlyCommand(opts))
	cmd.AddCommand(newReportProfitCommand(opts))
	cmd.AddCommand(newReportCriticalCommand(opts))
	cmd.AddCommand(newReportExportCommand(opts))
	return cmd
}

func newReportSummaryCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Revenue, margin and best sellers between two days (inclusive)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				start, end, err := dateRange(from, to, s.Clock.Now())
				if err != nil {
					return err
				}
				sum, err := s.Reports.Summary(ctx, start, end)
				if err != nil {
					return err
				}
				return out.Success(sum, func(w io.Writer) error {
					fmt.Fprintf(w, "%s to %s\n", sum.From.Format("2006-01-02"), sum.To.AddDate(0, 0, -1).Format("2006-01-02"))
					fmt.Fprintf(w, "sales:      %d\n", sum.SalesCount)
					fmt.Fprintf(w, "revenue:    %s USD / %s ARS\n", sum.RevenueUSD.StringFixed(2), sum.RevenueARS.StringFixed(2))
					fmt.Fprintf(w, "margin:     %s USD\n", sum.MarginUSD.StringFixed(2))
					fmt.Fprintf(w, "purchases:  %s USD\n", sum.PurchasesUSD.StringFixed(2))
					fmt.Fprintf(w, "net:        %s USD\n\n", sum.NetUSD().StringFixed(2))
					rows := make([][]string, 0, len(sum.TopProducts))
					for _, p := range sum.TopProducts {
						rows = append(rows, []string{
							p.SKU,
							p.Name,
							strconv.FormatInt(p.UnitsSold, 10),
							p.RevenueUSD.StringFixed(2),
							p.MarginUSD.StringFixed(2),
						})
					}
					return table(w, []string{"SKU", "NAME", "UNITS", "REVENUE_USD", "MARGIN_USD"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, default first of month)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD, default today)")
	return cmd
}

func newReportMonthlyCommand(opts *RootOptions) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Sales per calendar month, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				totals, err := s.Reports.MonthlySales(ctx, months)
				if err != nil {
					return err
				}
				return out.Success(totals, func(w io.Writer) error {
					rows := make([][]string, 0, len(totals))
					for _, m := range totals {
						rows = append(rows, []string{m.Month, m.TotalUSD.StringFixed(2)})
					}
					return table(w, []string{"MONTH", "TOTAL_USD"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVar(&months, "months", 12, "number of months including the current one")
	return cmd
}

func newReportProfitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profit",
		Short: "Daily margin with its running total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				points, err := s.Reports.CumulativeProfit(ctx)
				if err != nil {
					return err
				}
				return out.Success(points, func(w io.Writer) error {
					rows := make([][]string, 0, len(points))
					for _, p := range points {
						rows = append(rows, []string{p.Day, p.MarginUSD.StringFixed(2), p.CumulativeUSD.StringFixed(2)})
					}
					return table(w, []string{"DAY", "MARGIN_USD", "CUMULATIVE_USD"}, rows)
				})
			})
		},
	}
}

func newReportCriticalCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "critical",
		Short: "Products at or below their reorder point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				items, err := s.Reports.CriticalStock(ctx, limit)
				if err != nil {
					return err
				}
				return out.Success(items, func(w io.Writer) error {
					rows := make([][]string, 0, len(items))
					for _, c := range items {
						rows = append(rows, []string{
							c.SKU,
							c.Name,
							strconv.FormatInt(c.Stock, 10),
							strconv.FormatInt(c.MinStock, 10),
							strconv.FormatInt(c.Shortfall(), 10),
						})
					}
					return table(w, []string{"SKU", "NAME", "STOCK", "MIN", "SHORTFALL"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultCriticalLimit, "maximum rows")
	return cmd
}

func newReportExportCommand(opts *RootOptions) *cobra.Command {
	var from, to, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the summary, monthly sales and critical stock as a PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportExport); err != nil {
					return err
				}
				start, end, err := dateRange(from, to, s.Clock.Now())
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = filepath.Join(s.Config.DataDir, "reports",
						fmt.Sprintf("report-%s-%s.pdf", start.Format("20060102"), end.AddDate(0, 0, -1).Format("20060102")))
				}
				if err := writeExport(ctx, s, path, start, end); err != nil {
					return err
				}
				return out.Success(map[string]string{"path": path}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "report written to %s\n", path)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, default first of month)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default under the data directory)")
	return cmd
}

func writeExport(ctx context.Context, s *services, path string, start, end time.Time) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return s.Reports.Export(ctx, start, end, f)
}

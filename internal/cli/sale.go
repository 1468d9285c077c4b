package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/smallbiznis/stockbook/internal/authorization"
	saledomain "github.com/smallbiznis/stockbook/internal/sale/domain"
	"github.com/spf13/cobra"
)

// NewSaleCommand groups sale subcommands.
func NewSaleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Record and inspect sales",
	}
	cmd.AddCommand(newSaleCreateCommand(opts))
	cmd.AddCommand(newSaleShowCommand(opts))
	cmd.AddCommand(newSaleListCommand(opts))
	return cmd
}

type saleDetail struct {
	Sale  *saledomain.Sale  `json:"sale"`
	Lines []saledomain.Line `json:"lines"`
}

func newSaleCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		items []string
		notes string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Sell one or more items at today's exchange rate",
		Example: `  stockbook sale create -u seller --item 12:2:9.99 --item MUG-01:1
  (a missing price sells at the product's list price)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := parseItems(items)
			if err != nil {
				return err
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionSaleCreate)
				if err != nil {
					return err
				}
				lines := make([]saledomain.CartLine, 0, len(specs))
				for _, spec := range specs {
					p, err := s.findProduct(ctx, spec.Ref)
					if err != nil {
						return fmt.Errorf("item %s: %w", spec.Ref, err)
					}
					line := saledomain.CartLine{ProductID: p.ID, Qty: spec.Qty, UnitPriceUSD: p.PriceUSD}
					if spec.UnitUSD != nil {
						line.UnitPriceUSD = *spec.UnitUSD
					}
					lines = append(lines, line)
				}
				id, err := s.Sales.Create(ctx, saledomain.CreateRequest{
					Lines:       lines,
					Notes:       notes,
					ActorUserID: &actor.ID,
				})
				if err != nil {
					return err
				}
				detail, err := s.saleDetail(ctx, id)
				if err != nil {
					return err
				}
				return out.Success(detail, func(w io.Writer) error {
					return writeSale(w, detail)
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "line as <id|sku>:<qty>[:<unit_price_usd>] (repeatable)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func newSaleShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a sale with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				detail, err := s.saleDetail(ctx, id)
				if err != nil {
					return err
				}
				return out.Success(detail, func(w io.Writer) error {
					return writeSale(w, detail)
				})
			})
		},
	}
}

func newSaleListCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sales between two days (inclusive)",
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
				sales, err := s.Sales.ListBetween(ctx, start, end)
				if err != nil {
					return err
				}
				return out.Success(sales, func(w io.Writer) error {
					rows := make([][]string, 0, len(sales))
					for _, sl := range sales {
						rows = append(rows, []string{
							strconv.FormatInt(sl.ID, 10),
							sl.Datetime.Format("2006-01-02 15:04:05"),
							sl.TotalUSD.StringFixed(2),
							sl.FxRateUsed.String(),
							sl.TotalARS.StringFixed(2),
						})
					}
					return table(w, []string{"ID", "DATETIME", "TOTAL_USD", "FX", "TOTAL_ARS"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, default first of month)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD, default today)")
	return cmd
}

func (s *services) saleDetail(ctx context.Context, id int64) (*saleDetail, error) {
	sl, err := s.Sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.Sales.Lines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &saleDetail{Sale: sl, Lines: lines}, nil
}

func writeSale(w io.Writer, d *saleDetail) error {
	fmt.Fprintf(w, "sale %d at %s\n", d.Sale.ID, d.Sale.Datetime.Format("2006-01-02 15:04:05"))
	rows := make([][]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		rows = append(rows, []string{
			l.SKU,
			l.Name,
			strconv.FormatInt(l.Qty, 10),
			l.UnitPriceUSD.StringFixed(2),
			l.TotalUSD().StringFixed(2),
			l.MarginUSD().StringFixed(2),
		})
	}
	if err := table(w, []string{"SKU", "NAME", "QTY", "UNIT_USD", "TOTAL_USD", "MARGIN_USD"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "total %s USD x %s = %s ARS\n",
		d.Sale.TotalUSD.StringFixed(2), d.Sale.FxRateUsed.String(), d.Sale.TotalARS.StringFixed(2))
	return err
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

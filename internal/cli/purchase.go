package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/smallbiznis/stockbook/internal/authorization"
	purchasedomain "github.com/smallbiznis/stockbook/internal/purchase/domain"
	"github.com/spf13/cobra"
)

// NewPurchaseCommand groups restock subcommands.
func NewPurchaseCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Record and inspect restocks",
	}
	cmd.AddCommand(newPurchaseCreateCommand(opts))
	cmd.AddCommand(newPurchaseListCommand(opts))
	return cmd
}

func newPurchaseCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		items         []string
		vendor, notes string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Receive stock and update weighted average costs",
		Example: `  stockbook purchase create -u seller --vendor Acme --item 12:10:4.50
  (a missing cost restocks at the product's current cost)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := parseItems(items)
			if err != nil {
				return err
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionPurchaseCreate)
				if err != nil {
					return err
				}
				lines := make([]purchasedomain.RestockLine, 0, len(specs))
				for _, spec := range specs {
					p, err := s.findProduct(ctx, spec.Ref)
					if err != nil {
						return fmt.Errorf("item %s: %w", spec.Ref, err)
					}
					line := purchasedomain.RestockLine{ProductID: p.ID, Qty: spec.Qty, UnitCostUSD: p.CostUSD}
					if spec.UnitUSD != nil {
						line.UnitCostUSD = *spec.UnitUSD
					}
					lines = append(lines, line)
				}
				id, err := s.Purchases.Create(ctx, purchasedomain.CreateRequest{
					Vendor:      vendor,
					Notes:       notes,
					Lines:       lines,
					ActorUserID: &actor.ID,
				})
				if err != nil {
					return err
				}
				purchase, err := s.Purchases.Get(ctx, id)
				if err != nil {
					return err
				}
				return out.Success(purchase, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "purchase %d recorded, total %s USD\n", purchase.ID, purchase.TotalUSD.StringFixed(2))
					return err
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "line as <id|sku>:<qty>[:<unit_cost_usd>] (repeatable)")
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor name")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func newPurchaseListCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List purchases between two days (inclusive)",
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
				purchases, err := s.Purchases.ListBetween(ctx, start, end)
				if err != nil {
					return err
				}
				return out.Success(purchases, func(w io.Writer) error {
					rows := make([][]string, 0, len(purchases))
					for _, p := range purchases {
						vendor := ""
						if p.Vendor != nil {
							vendor = *p.Vendor
						}
						rows = append(rows, []string{
							strconv.FormatInt(p.ID, 10),
							p.Datetime.Format("2006-01-02 15:04:05"),
							vendor,
							p.TotalUSD.StringFixed(2),
						})
					}
					return table(w, []string{"ID", "DATETIME", "VENDOR", "TOTAL_USD"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, default first of month)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD, default today)")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/internal/authorization"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	productdomain "github.com/smallbiznis/stockbook/internal/product/domain"
	"github.com/spf13/cobra"
)

const defaultLedgerLimit = 50

// NewProductCommand groups catalog and stock subcommands.
func NewProductCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage products and stock",
	}
	cmd.AddCommand(newProductAddCommand(opts))
	cmd.AddCommand(newProductListCommand(opts))
	cmd.AddCommand(newProductDeactivateCommand(opts))
	cmd.AddCommand(newProductPriceCommand(opts))
	cmd.AddCommand(newProductAdjustCommand(opts))
	cmd.AddCommand(newProductLedgerCommand(opts))
	return cmd
}

func newProductAddCommand(opts *RootOptions) *cobra.Command {
	var (
		sku, name, cost, price string
		stock, minStock        int64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product, recording any opening stock in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			costUSD, err := parseMoney("cost", cost)
			if err != nil {
				return err
			}
			priceUSD, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionProductCreate)
				if err != nil {
					return err
				}
				p, err := s.Products.Add(ctx, productdomain.CreateRequest{
					SKU:         sku,
					Name:        name,
					CostUSD:     costUSD,
					PriceUSD:    priceUSD,
					Stock:       stock,
					MinStock:    minStock,
					ActorUserID: &actor.ID,
				})
				if err != nil {
					return err
				}
				return out.Success(p, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "product %s added (id %d, stock %d)\n", p.SKU, p.ID, p.Stock)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&sku, "sku", "", "stock keeping unit")
	cmd.Flags().StringVar(&name, "name", "", "product name")
	cmd.Flags().StringVar(&cost, "cost", "0", "unit cost in USD")
	cmd.Flags().StringVar(&price, "price", "", "unit sale price in USD")
	cmd.Flags().Int64Var(&stock, "stock", 0, "opening stock")
	cmd.Flags().Int64Var(&minStock, "min-stock", 0, "reorder point")
	_ = cmd.MarkFlagRequired("sku")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newProductListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				products, err := s.Products.ListActive(ctx)
				if err != nil {
					return err
				}
				return out.Success(products, func(w io.Writer) error {
					rows := make([][]string, 0, len(products))
					for _, p := range products {
						flag := ""
						if p.Critical() {
							flag = "critical"
						}
						rows = append(rows, []string{
							strconv.FormatInt(p.ID, 10),
							p.SKU,
							p.Name,
							p.CostUSD.StringFixed(2),
							p.PriceUSD.StringFixed(2),
							strconv.FormatInt(p.Stock, 10),
							strconv.FormatInt(p.MinStock, 10),
							flag,
						})
					}
					return table(w, []string{"ID", "SKU", "NAME", "COST_USD", "PRICE_USD", "STOCK", "MIN", ""}, rows)
				})
			})
		},
	}
}

func newProductDeactivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id|sku>",
		Short: "Deactivate a product with no stock left",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionProductDelete)
				if err != nil {
					return err
				}
				p, err := s.findProduct(ctx, args[0])
				if err != nil {
					return err
				}
				if err := s.Products.Deactivate(ctx, p.ID); err != nil {
					return err
				}
				s.audit(ctx, actor, auditdomain.ActionProductOff, "product", p.SKU, nil)
				return out.Success(map[string]any{"id": p.ID, "sku": p.SKU, "active": false}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "product %s deactivated\n", p.SKU)
					return err
				})
			})
		},
	}
}

func newProductPriceCommand(opts *RootOptions) *cobra.Command {
	var (
		price    string
		minStock int64
	)
	cmd := &cobra.Command{
		Use:   "price <id|sku>",
		Short: "Change the sale price and reorder point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionProductUpdate)
				if err != nil {
					return err
				}
				current, err := s.findProduct(ctx, args[0])
				if err != nil {
					return err
				}
				req := productdomain.UpdatePricingRequest{
					ID:       current.ID,
					PriceUSD: current.PriceUSD,
					MinStock: current.MinStock,
				}
				if cmd.Flags().Changed("price") {
					if req.PriceUSD, err = parseMoney("price", price); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("min-stock") {
					req.MinStock = minStock
				}
				p, err := s.Products.UpdatePricing(ctx, req)
				if err != nil {
					return err
				}
				s.audit(ctx, actor, auditdomain.ActionProductUpdate, "product", p.SKU, map[string]any{
					"price_usd_before": current.PriceUSD.String(),
					"price_usd":        p.PriceUSD.String(),
					"min_stock_before": current.MinStock,
					"min_stock":        p.MinStock,
				})
				return out.Success(p, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "product %s: price %s USD, min stock %d\n", p.SKU, p.PriceUSD.StringFixed(2), p.MinStock)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "new unit sale price in USD")
	cmd.Flags().Int64Var(&minStock, "min-stock", 0, "new reorder point")
	return cmd
}

func newProductAdjustCommand(opts *RootOptions) *cobra.Command {
	var (
		delta int64
		notes string
	)
	cmd := &cobra.Command{
		Use:   "adjust <id|sku>",
		Short: "Correct stock by a signed amount (--delta=-2)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionStockAdjust)
				if err != nil {
					return err
				}
				current, err := s.findProduct(ctx, args[0])
				if err != nil {
					return err
				}
				p, err := s.Products.Adjust(ctx, productdomain.AdjustRequest{
					ProductID:   current.ID,
					Delta:       delta,
					Notes:       notes,
					ActorUserID: &actor.ID,
				})
				if err != nil {
					return err
				}
				s.audit(ctx, actor, auditdomain.ActionStockAdjusted, "product", p.SKU, map[string]any{
					"delta": delta,
					"stock": p.Stock,
					"notes": notes,
				})
				return out.Success(p, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "product %s stock now %d\n", p.SKU, p.Stock)
					return err
				})
			})
		},
	}
	cmd.Flags().Int64Var(&delta, "delta", 0, "signed stock change")
	cmd.Flags().StringVar(&notes, "notes", "", "reason for the adjustment")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}

func newProductLedgerCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ledger [id|sku]",
		Short: "Show stock movements, for one product or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				var (
					entries []ledgerdomain.Entry
					err     error
				)
				if len(args) == 1 {
					p, ferr := s.findProduct(ctx, args[0])
					if ferr != nil {
						return ferr
					}
					entries, err = s.Ledger.ForProduct(ctx, p.ID, limit)
				} else {
					entries, err = s.Ledger.Recent(ctx, limit)
				}
				if err != nil {
					return err
				}
				return out.Success(entries, func(w io.Writer) error {
					rows := make([][]string, 0, len(entries))
					for _, e := range entries {
						unit := ""
						if e.UnitValueUSD.Valid {
							unit = e.UnitValueUSD.Decimal.StringFixed(2)
						}
						ref := e.ReferenceType
						if e.ReferenceID != nil {
							ref = fmt.Sprintf("%s/%d", e.ReferenceType, *e.ReferenceID)
						}
						rows = append(rows, []string{
							e.Datetime.Format("2006-01-02 15:04:05"),
							e.SKU,
							string(e.MovementType),
							strconv.FormatInt(e.QtyDelta, 10),
							strconv.FormatInt(e.StockAfter, 10),
							unit,
							ref,
						})
					}
					return table(w, []string{"DATETIME", "SKU", "TYPE", "DELTA", "STOCK_AFTER", "UNIT_USD", "REFERENCE"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultLedgerLimit, "maximum rows")
	return cmd
}

// findProduct resolves a numeric id or a SKU.
func (s *services) findProduct(ctx context.Context, ref string) (*productdomain.Product, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.Products.GetByID(ctx, id)
	}
	return s.Products.GetBySKU(ctx, ref)
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperror.Validation(fmt.Sprintf("invalid %s %q", field, raw))
	}
	return v, nil
}

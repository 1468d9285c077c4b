package cli

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/internal/authorization"
	"github.com/smallbiznis/stockbook/pkg/db"
	"github.com/spf13/cobra"
)

// NewAuditCommand groups audit log subcommands.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the security audit log",
	}
	cmd.AddCommand(newAuditListCommand(opts))
	return cmd
}

func newAuditListCommand(opts *RootOptions) *cobra.Command {
	var (
		action string
		actor  string
		from   string
		to     string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := auditdomain.ListRequest{Action: action, Actor: actor, Limit: limit}
			if from != "" {
				day, err := parseDay(from)
				if err != nil {
					return err
				}
				req.From = &day
			}
			if to != "" {
				day, err := parseDay(to)
				if err != nil {
					return err
				}
				end := day.AddDate(0, 0, 1)
				req.To = &end
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionUserManage); err != nil {
					return err
				}
				entries, err := s.Audit.List(ctx, req)
				if err != nil {
					return err
				}
				return out.Success(entries, func(w io.Writer) error {
					rows := make([][]string, 0, len(entries))
					for _, e := range entries {
						meta := ""
						if len(e.Metadata) > 0 {
							raw, err := json.Marshal(e.Metadata)
							if err != nil {
								return err
							}
							meta = string(raw)
						}
						rows = append(rows, []string{
							strconv.FormatInt(e.ID, 10),
							db.FormatTime(e.CreatedAt),
							e.Actor,
							e.Action,
							e.TargetType + ":" + e.TargetID,
							meta,
						})
					}
					return table(w, []string{"ID", "AT", "ACTOR", "ACTION", "TARGET", "METADATA"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only entries with this action")
	cmd.Flags().StringVar(&actor, "actor", "", "only entries by this username")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stockbook/internal/apperror"
	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/internal/authorization"
	"github.com/smallbiznis/stockbook/internal/scheduler"
	"github.com/smallbiznis/stockbook/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type schemaStatus struct {
	Version int `json:"schema_version"`
	Latest  int `json:"schema_latest"`
}

// NewMigrateCommand applies pending schema migrations and reports the version.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations in one transaction.

A snapshot of the store is taken first and restored if any migration fails.
Every other command migrates on start as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				version, err := s.Migrator.Version(ctx)
				if err != nil {
					return err
				}
				status := schemaStatus{Version: version, Latest: s.Migrator.Latest()}
				return out.Success(status, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "schema at version %d (latest %d)\n", status.Version, status.Latest)
					return err
				})
			})
		},
	}
}

// NewServeCommand runs the ops HTTP surface until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, readiness and metrics endpoints and run maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			served := &RootOptions{User: opts.User, Format: opts.Format}
			served.Extra = append(append([]fx.Option{}, opts.Extra...), server.Module, scheduler.Module)
			return withServices(cmd, served, func(ctx context.Context, s *services) error {
				s.Log.Info("serving", zap.String("addr", s.Config.OpsAddr))
				<-ctx.Done()
				return nil
			})
		},
	}
}

// NewBackupCommand groups backup subcommands.
func NewBackupCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and restore encrypted backups",
	}
	cmd.AddCommand(newBackupCreateCommand(opts))
	cmd.AddCommand(newBackupListCommand(opts))
	cmd.AddCommand(newBackupRestoreCommand(opts))
	return cmd
}

func newBackupCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write an encrypted backup of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionBackupManage)
				if err != nil {
					return err
				}
				path, err := s.Backup.WriteBackup(ctx)
				if err != nil {
					return err
				}
				s.audit(ctx, actor, auditdomain.ActionBackupCreated, "backup", filepath.Base(path), nil)
				return out.Success(map[string]string{"path": path}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "backup written to %s\n", path)
					return err
				})
			})
		},
	}
}

func newBackupListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionBackupManage); err != nil {
					return err
				}
				files, err := s.Backup.List()
				if err != nil {
					return err
				}
				return out.Success(files, func(w io.Writer) error {
					for _, f := range files {
						fmt.Fprintln(w, f)
					}
					return nil
				})
			})
		},
	}
}

func newBackupRestoreCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the store with a backup (latest unless --file is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionBackupManage)
				if err != nil {
					return err
				}
				restored := file
				if restored == "" {
					if restored, err = s.Backup.RestoreLatest(ctx); err != nil {
						return err
					}
				} else if err := s.Backup.RestoreFile(ctx, restored); err != nil {
					return err
				}
				// Lands in the restored store, so the restore itself stays on record.
				s.audit(ctx, actor, auditdomain.ActionBackupRestore, "backup", filepath.Base(restored), nil)
				return out.Success(map[string]string{"path": restored}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "restored %s\n", restored)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "backup file to restore")
	return cmd
}

// NewFxCommand groups exchange rate subcommands.
func NewFxCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fx",
		Short: "Show or set the USD/ARS exchange rate",
	}
	cmd.AddCommand(newFxSetCommand(opts))
	cmd.AddCommand(newFxShowCommand(opts))
	return cmd
}

func newFxSetCommand(opts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "set <usd_ars>",
		Short: "Set the rate for a day (today unless --date is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := decimal.NewFromString(args[0])
			if err != nil {
				return apperror.Validation(fmt.Sprintf("invalid rate %q", args[0]))
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionFxManage)
				if err != nil {
					return err
				}
				day := s.Clock.Now()
				if date != "" {
					if day, err = parseDay(date); err != nil {
						return err
					}
				}
				saved, err := s.Rates.SetManual(ctx, day, rate)
				if err != nil {
					return err
				}
				s.audit(ctx, actor, auditdomain.ActionFxRateSet, "fx_rate", saved.Date, map[string]any{
					"usd_ars": saved.USDARS.String(),
				})
				return out.Success(saved, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s USD/ARS %s (%s)\n", saved.Date, saved.USDARS.String(), saved.Source)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day the rate applies to (YYYY-MM-DD)")
	return cmd
}

func newFxShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the most recent stored rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionReportView); err != nil {
					return err
				}
				rate, err := s.Rates.Latest(ctx)
				if err != nil {
					return err
				}
				return out.Success(rate, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s USD/ARS %s (%s, fetched %s)\n",
						rate.Date, rate.USDARS.String(), rate.Source, rate.FetchedAt.Format(time.RFC3339))
					return err
				})
			})
		},
	}
}

func parseDay(raw string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperror.Validation(fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", raw))
	}
	return day, nil
}

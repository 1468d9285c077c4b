package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/stockbook/internal/apperror"
	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	authdomain "github.com/smallbiznis/stockbook/internal/auth/domain"
	authservice "github.com/smallbiznis/stockbook/internal/auth/service"
	"github.com/smallbiznis/stockbook/internal/authorization"
	"github.com/spf13/cobra"
)

// NewUserCommand groups account management subcommands.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))
	cmd.AddCommand(newUserPasswdCommand(opts))
	return cmd
}

func newUserCreateCommand(opts *RootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a seller or viewer account",
		Long: `Create a seller or viewer account. The new account's PIN is read from
` + EnvNewPin + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin := os.Getenv(EnvNewPin)
			if pin == "" {
				return ErrNewPinNotSupplied
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				actor, err := s.login(ctx, opts, authorization.ActionUserManage)
				if err != nil {
					return err
				}
				user, err := s.Auth.CreateUser(ctx, actor, authdomain.CreateUserRequest{
					Username: args[0],
					Pin:      pin,
					Role:     authdomain.Role(strings.ToLower(strings.TrimSpace(role))),
				})
				if err != nil {
					return err
				}
				s.audit(ctx, actor, auditdomain.ActionUserCreated, "user", strconv.FormatInt(user.ID, 10), map[string]any{
					"username": user.Username,
					"role":     string(user.Role),
				})
				return out.Success(user, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "user %s created (id %d, role %s)\n", user.Username, user.ID, user.Role)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(authdomain.RoleSeller), "role for the new account (seller|viewer)")
	return cmd
}

func newUserListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				if _, err := s.login(ctx, opts, authorization.ActionUserManage); err != nil {
					return err
				}
				users, err := s.Auth.ListUsers(ctx)
				if err != nil {
					return err
				}
				return out.Success(users, func(w io.Writer) error {
					rows := make([][]string, 0, len(users))
					for _, u := range users {
						locked := ""
						if u.LockedUntil != nil && u.LockedUntil.After(s.Clock.Now()) {
							locked = "locked"
						}
						rows = append(rows, []string{
							strconv.FormatInt(u.ID, 10),
							u.Username,
							string(u.Role),
							strconv.FormatBool(u.Active),
							strconv.FormatBool(u.MustChangePin),
							locked,
						})
					}
					return table(w, []string{"ID", "USERNAME", "ROLE", "ACTIVE", "MUST_CHANGE_PIN", "STATUS"}, rows)
				})
			})
		},
	}
}

func newUserPasswdCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the PIN of --user",
		Long: `Change the PIN of --user. The current PIN is read from ` + EnvPin + ` and
the new one from ` + EnvNewPin + `. This is the only command available to an
account that must change its PIN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			next := os.Getenv(EnvNewPin)
			if next == "" {
				return ErrNewPinNotSupplied
			}
			username := strings.TrimSpace(opts.User)
			if username == "" {
				return ErrUserRequired
			}
			out := newFormatter(opts, cmd)
			return withServices(cmd, opts, func(ctx context.Context, s *services) error {
				current := os.Getenv(EnvPin)
				user, err := s.Auth.Login(ctx, username, current)
				if err != nil {
					if apperror.KindOf(err) == apperror.KindAuthorization {
						s.recordAudit(ctx, nil, username, auditdomain.ActionLoginFailed, "user", username, map[string]any{
							"locked": authservice.IsLocked(err),
							"action": "user.passwd",
						})
					}
					return err
				}
				if err := s.Auth.ChangePin(ctx, authdomain.ChangePinRequest{
					UserID:  user.ID,
					Current: current,
					Next:    next,
					Confirm: next,
				}); err != nil {
					return err
				}
				s.audit(ctx, user, auditdomain.ActionPinChanged, "user", strconv.FormatInt(user.ID, 10), nil)
				return out.Success(map[string]string{"username": user.Username}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "pin changed for %s\n", user.Username)
					return err
				})
			})
		},
	}
}

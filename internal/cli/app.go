package cli

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
	"github.com/smallbiznis/stockbook/internal/audit"
	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/internal/auth"
	authdomain "github.com/smallbiznis/stockbook/internal/auth/domain"
	authservice "github.com/smallbiznis/stockbook/internal/auth/service"
	"github.com/smallbiznis/stockbook/internal/authorization"
	"github.com/smallbiznis/stockbook/internal/backup"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/config"
	"github.com/smallbiznis/stockbook/internal/fxrate"
	fxdomain "github.com/smallbiznis/stockbook/internal/fxrate/domain"
	"github.com/smallbiznis/stockbook/internal/ledger"
	ledgerdomain "github.com/smallbiznis/stockbook/internal/ledger/domain"
	"github.com/smallbiznis/stockbook/internal/migration"
	"github.com/smallbiznis/stockbook/internal/observability"
	"github.com/smallbiznis/stockbook/internal/product"
	productdomain "github.com/smallbiznis/stockbook/internal/product/domain"
	"github.com/smallbiznis/stockbook/internal/providers/pdf"
	"github.com/smallbiznis/stockbook/internal/purchase"
	purchasedomain "github.com/smallbiznis/stockbook/internal/purchase/domain"
	"github.com/smallbiznis/stockbook/internal/report"
	reportdomain "github.com/smallbiznis/stockbook/internal/report/domain"
	"github.com/smallbiznis/stockbook/internal/sale"
	saledomain "github.com/smallbiznis/stockbook/internal/sale/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"github.com/smallbiznis/stockbook/pkg/telemetry/correlation"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const stopTimeout = 15 * time.Second

var (
	ErrUserRequired      = apperror.Validation("--user is required")
	ErrPinChangeRequired = apperror.New(apperror.KindAuthorization, "pin change required; run `stockbook user passwd` first")
	ErrNewPinNotSupplied = apperror.Validation("new pin must be set in " + EnvNewPin)
)

// services is everything a command can reach once the app has started.
type services struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Migrator  *migration.Migrator
	Backup    *backup.Service
	Auth      authdomain.Service
	Audit     auditdomain.Service
	Authz     authorization.Service
	Products  productdomain.Service
	Ledger    ledgerdomain.Service
	Rates     fxdomain.Service
	Sales     saledomain.Service
	Purchases purchasedomain.Service
	Reports   reportdomain.Service
}

func modules(extra ...fx.Option) []fx.Option {
	opts := []fx.Option{
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		backup.Module,
		migration.Module,
		authorization.Module,
		audit.Module,
		auth.Module,
		ledger.Module,
		product.Module,
		fxrate.Module,
		sale.Module,
		purchase.Module,
		report.Module,
		pdf.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
	}
	return append(opts, extra...)
}

// withServices builds and starts the app, runs fn and stops the app.
// Migrations and the admin bootstrap run while the app is built, before fn
// sees the store.
func withServices(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *services) error) error {
	var s services
	extra := append(append([]fx.Option{}, opts.Extra...), fx.Populate(&s))
	app := fx.New(modules(extra...)...)
	if err := app.Err(); err != nil {
		if errors.Is(err, apperror.ErrMigration) {
			return err
		}
		return WrapExitError(ExitCommandError, "build application", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, _ = correlation.Ensure(ctx)
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return WrapExitError(ExitCommandError, "start application", err)
	}

	runErr := fn(ctx, &s)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = WrapExitError(ExitCommandError, "stop application", err)
	}
	return runErr
}

// login authenticates --user with the PIN from the environment and checks
// that the user may perform action. An empty action only requires a valid
// session with no pending PIN change.
func (s *services) login(ctx context.Context, opts *RootOptions, action string) (*authdomain.User, error) {
	username := strings.TrimSpace(opts.User)
	if username == "" {
		return nil, ErrUserRequired
	}
	user, err := s.Auth.Login(ctx, username, os.Getenv(EnvPin))
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAuthorization {
			s.recordAudit(ctx, nil, username, auditdomain.ActionLoginFailed, "user", username, map[string]any{
				"locked": authservice.IsLocked(err),
				"action": action,
			})
		}
		return nil, err
	}
	if user.MustChangePin {
		return nil, ErrPinChangeRequired
	}
	if action != "" {
		if err := s.Authz.Authorize(ctx, string(user.Role), action); err != nil {
			if apperror.KindOf(err) == apperror.KindAuthorization {
				s.audit(ctx, user, auditdomain.ActionAccessDenied, "action", action, map[string]any{
					"role": string(user.Role),
				})
			}
			return nil, err
		}
	}
	s.Log.Debug("session opened",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("action", action),
	)
	return user, nil
}

// audit records a completed action by user. A failed write is logged and
// never fails the command that already succeeded.
func (s *services) audit(ctx context.Context, user *authdomain.User, action, targetType, targetID string, metadata map[string]any) {
	var id *int64
	name := ""
	if user != nil {
		uid := user.ID
		id = &uid
		name = user.Username
	}
	s.recordAudit(ctx, id, name, action, targetType, targetID, metadata)
}

func (s *services) recordAudit(ctx context.Context, userID *int64, actor, action, targetType, targetID string, metadata map[string]any) {
	err := s.Audit.Record(ctx, auditdomain.RecordRequest{
		ActorUserID: userID,
		Actor:       actor,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
	if err != nil {
		s.Log.Warn("audit record dropped", zap.String("action", action), zap.Error(err))
	}
}

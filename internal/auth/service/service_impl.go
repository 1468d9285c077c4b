package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/smallbiznis/stockbook/internal/auth/domain"
	"github.com/smallbiznis/stockbook/internal/auth/password"
	"github.com/smallbiznis/stockbook/internal/authorization"
	"github.com/smallbiznis/stockbook/internal/clock"
	"github.com/smallbiznis/stockbook/internal/config"
	obsmetrics "github.com/smallbiznis/stockbook/internal/observability/metrics"
	"github.com/smallbiznis/stockbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Security *config.SecurityConfigHolder
	Authz    authorization.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	security *config.SecurityConfigHolder
	authz    authorization.Service
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("auth.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		security: p.Security,
		authz:    p.Authz,
		metrics:  p.Metrics,
	}
}

func (s *Service) vault() *password.Vault {
	return password.FromHolder(s.security)
}

// Login verifies a username and PIN against the persisted lockout state.
// Unknown and inactive users get the same error as a wrong PIN.
func (s *Service) Login(ctx context.Context, username, pin string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	log := s.log.With(zap.String("username", username))

	account, err := s.repo.FindByUsername(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		log.Info("login failed", zap.String("reason", "unknown user"))
		s.metrics.RecordLogin("unknown_user")
		return nil, domain.ErrInvalidCredentials
	}
	if !account.Active {
		log.Info("login failed", zap.String("reason", "inactive user"))
		s.metrics.RecordLogin("inactive_user")
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now()
	if account.LockedUntil != nil && account.LockedUntil.After(now) {
		log.Info("login rejected", zap.String("reason", "locked"), zap.Time("locked_until", *account.LockedUntil))
		s.metrics.RecordLogin("locked")
		return nil, &domain.LockedError{Remaining: account.LockedUntil.Sub(now)}
	}

	vault := s.vault()
	ok, needsRehash := vault.Verify(account.Pin, pin)
	if !ok {
		return nil, s.recordFailure(ctx, log, account, now)
	}

	var rehashed string
	if needsRehash {
		if rehashed, err = vault.Hash(pin); err != nil {
			return nil, err
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ClearFailures(ctx, tx, account.ID); err != nil {
			return err
		}
		if rehashed != "" {
			return s.repo.UpdatePin(ctx, tx, account.ID, rehashed, account.MustChangePin)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	if rehashed != "" {
		log.Info("stored credential upgraded")
	}
	log.Info("login succeeded", zap.Int64("user_id", account.ID))
	s.metrics.RecordLogin("success")

	user := account.User
	user.FailedAttempts = 0
	user.LockedUntil = nil
	return &user, nil
}

func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, account *domain.Account, now time.Time) error {
	policy := s.security.Get()
	var locked *domain.LockedError

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts, err := s.repo.IncrementFailures(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if attempts < policy.MaxFailedAttempts {
			return nil
		}
		window := time.Duration(policy.LockoutSeconds) * time.Second
		if err := s.repo.Lock(ctx, tx, account.ID, now.Add(window)); err != nil {
			return err
		}
		locked = &domain.LockedError{Remaining: window}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	if locked != nil {
		log.Warn("account locked", zap.Int("lockout_seconds", policy.LockoutSeconds))
		s.metrics.RecordLogin("locked")
		s.metrics.RecordLockout()
		return locked
	}
	log.Info("login failed", zap.String("reason", "wrong pin"))
	s.metrics.RecordLogin("wrong_pin")
	return domain.ErrInvalidCredentials
}

func (s *Service) ChangePin(ctx context.Context, req domain.ChangePinRequest) error {
	account, err := s.repo.FindByID(ctx, s.db, req.UserID)
	if err != nil {
		return err
	}
	if account == nil || !account.Active {
		return domain.ErrUserNotFound
	}

	vault := s.vault()
	if ok, _ := vault.Verify(account.Pin, req.Current); !ok {
		return domain.ErrInvalidCredentials
	}
	if req.Next != req.Confirm {
		return domain.ErrPinMismatch
	}
	if req.Next == req.Current {
		return domain.ErrPinUnchanged
	}
	if err := password.ValidatePin(req.Next, s.security.Get().MinPinLength); err != nil {
		return err
	}

	hashed, err := vault.Hash(req.Next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePin(ctx, s.db, account.ID, hashed, false); err != nil {
		return err
	}
	s.log.Info("pin changed", zap.Int64("user_id", account.ID))
	return nil
}

func (s *Service) CreateUser(ctx context.Context, actor *domain.User, req domain.CreateUserRequest) (*domain.User, error) {
	if actor == nil {
		return nil, domain.ErrMissingActor
	}
	if err := s.authz.Authorize(ctx, string(actor.Role), authorization.ActionUserManage); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(username) {
		return nil, domain.ErrInvalidUsername
	}
	if req.Role != domain.RoleSeller && req.Role != domain.RoleViewer {
		return nil, domain.ErrRoleNotAllowed
	}
	if err := password.ValidatePin(req.Pin, s.security.Get().MinPinLength); err != nil {
		return nil, err
	}

	hashed, err := s.vault().Hash(req.Pin)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		User: domain.User{
			Username:  username,
			Role:      req.Role,
			Active:    true,
			CreatedAt: s.clock.Now(),
		},
		Pin: hashed,
	}
	id, err := s.repo.Create(ctx, s.db, account)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, err
	}
	account.ID = id

	s.log.Info("user created",
		zap.Int64("user_id", id),
		zap.String("username", username),
		zap.String("role", string(req.Role)),
		zap.Int64("actor_user_id", actor.ID),
	)
	user := account.User
	return &user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrUserNotFound
	}
	user := account.User
	return &user, nil
}

// IsLocked reports whether err is a lockout.
func IsLocked(err error) bool {
	var locked *domain.LockedError
	return errors.As(err, &locked)
}

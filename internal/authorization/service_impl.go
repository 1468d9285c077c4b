package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, action string) error {
	allowed, err := s.Allowed(role, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied", zap.String("role", role), zap.String("action", action))
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Allowed(role string, action string) (bool, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false, ErrInvalidRole
	}
	object, ok := objectOf(action)
	if !ok {
		return false, ErrInvalidAction
	}
	return s.enforcer.Enforce(roleSubject(role), object, action)
}

func roleSubject(role string) string {
	return "role:" + role
}

func objectOf(action string) (string, bool) {
	object, _, ok := strings.Cut(strings.TrimSpace(action), ".")
	if !ok || object == "" {
		return "", false
	}
	return object, true
}

// seedPolicies installs the role matrix. Admin inherits seller, and seller
// inherits viewer.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{"role:viewer", ObjectReport, ActionReportView},
		{"role:viewer", ObjectReport, ActionReportExport},

		// Seller permissions
		{"role:seller", ObjectProduct, ActionProductCreate},
		{"role:seller", ObjectSale, ActionSaleCreate},
		{"role:seller", ObjectPurchase, ActionPurchaseCreate},

		// Admin permissions
		{"role:admin", ObjectProduct, ActionProductUpdate},
		{"role:admin", ObjectProduct, ActionProductDelete},
		{"role:admin", ObjectStock, ActionStockAdjust},
		{"role:admin", ObjectImport, ActionImportRun},
		{"role:admin", ObjectUser, ActionUserManage},
		{"role:admin", ObjectBackup, ActionBackupManage},
		{"role:admin", ObjectFx, ActionFxManage},
	}
	grouping := [][]string{
		{"role:admin", "role:seller"},
		{"role:seller", "role:viewer"},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	for _, rule := range grouping {
		has, err := enforcer.HasGroupingPolicy(rule)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}

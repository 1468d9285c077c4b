package authorization

import (
	"context"

	"github.com/smallbiznis/stockbook/internal/apperror"
)

const (
	ObjectProduct  = "product"
	ObjectStock    = "stock"
	ObjectSale     = "sale"
	ObjectPurchase = "purchase"
	ObjectReport   = "report"
	ObjectImport   = "import"
	ObjectUser     = "user"
	ObjectBackup   = "backup"
	ObjectFx       = "fx"
)

const (
	ActionProductCreate  = "product.create"
	ActionProductUpdate  = "product.update"
	ActionProductDelete  = "product.delete"
	ActionStockAdjust    = "stock.adjust"
	ActionSaleCreate     = "sale.create"
	ActionPurchaseCreate = "purchase.create"
	ActionReportView     = "report.view"
	ActionReportExport   = "report.export"
	ActionImportRun      = "import.run"
	ActionUserManage     = "user.manage"
	ActionBackupManage   = "backup.manage"
	ActionFxManage       = "fx.manage"
)

var (
	ErrForbidden     = apperror.New(apperror.KindAuthorization, "You do not have permission to perform this action")
	ErrInvalidRole   = apperror.New(apperror.KindAuthorization, "invalid role")
	ErrInvalidAction = apperror.Validation("invalid action")
)

// Service decides whether a role may perform an action.
type Service interface {
	Authorize(ctx context.Context, role string, action string) error
	Allowed(role string, action string) (bool, error)
}

package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded in the audit log.
const (
	ActionUserCreated   = "user.created"
	ActionPinChanged    = "user.pin_changed"
	ActionLoginFailed   = "auth.login_failed"
	ActionAccessDenied  = "auth.access_denied"
	ActionProductUpdate = "product.updated"
	ActionProductOff    = "product.deactivated"
	ActionStockAdjusted = "stock.adjusted"
	ActionBackupCreated = "backup.created"
	ActionBackupRestore = "backup.restored"
	ActionFxRateSet     = "fx.rate_set"
)

// Entry is one row of the append-only audit log.
type Entry struct {
	ID          int64             `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	ActorUserID *int64            `json:"actor_user_id,omitempty"`
	Actor       string            `json:"actor"`
	Action      string            `json:"action"`
	TargetType  string            `json:"target_type,omitempty"`
	TargetID    string            `json:"target_id,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
}

type RecordRequest struct {
	ActorUserID *int64
	Actor       string
	Action      string
	TargetType  string
	TargetID    string
	Metadata    map[string]any
}

// ListRequest filters entries; From is inclusive and To exclusive.
type ListRequest struct {
	Action string
	Actor  string
	From   *time.Time
	To     *time.Time
	Limit  int
}

type ListFilter struct {
	Action string
	Actor  string
	From   *time.Time
	To     *time.Time
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Entry, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	List(ctx context.Context, req ListRequest) ([]Entry, error)
}

var (
	ErrInvalidAction    = apperror.Validation("audit action is required")
	ErrInvalidTimeRange = apperror.Validation("audit range start must be before its end")
)

package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/internal/audit/masking"
	"github.com/smallbiznis/stockbook/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends one entry. Credential-like metadata values are masked
// before they are stored. Callers must not hold an open transaction.
func (s *Service) Record(ctx context.Context, req auditdomain.RecordRequest) error {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "system"
	}

	entry := auditdomain.Entry{
		CreatedAt:   s.clock.Now().UTC(),
		ActorUserID: req.ActorUserID,
		Actor:       actor,
		Action:      action,
		TargetType:  strings.TrimSpace(req.TargetType),
		TargetID:    strings.TrimSpace(req.TargetID),
	}
	if masked := masking.MaskMetadata(req.Metadata); masked != nil {
		entry.Metadata = datatypes.JSONMap(masked)
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.Entry, error) {
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return nil, auditdomain.ErrInvalidTimeRange
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	return s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action: req.Action,
		Actor:  req.Actor,
		From:   req.From,
		To:     req.To,
		Limit:  limit,
	})
}

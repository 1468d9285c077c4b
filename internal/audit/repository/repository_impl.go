package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type auditRow struct {
	ID          int64             `gorm:"column:id;primaryKey"`
	CreatedAt   string            `gorm:"column:created_at"`
	ActorUserID sql.NullInt64     `gorm:"column:actor_user_id"`
	Actor       string            `gorm:"column:actor"`
	Action      string            `gorm:"column:action"`
	TargetType  string            `gorm:"column:target_type"`
	TargetID    string            `gorm:"column:target_id"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata"`
}

func (auditRow) TableName() string { return "audit_log" }

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	row := auditRow{
		CreatedAt:  db.FormatTime(entry.CreatedAt),
		Actor:      entry.Actor,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Metadata:   entry.Metadata,
	}
	if entry.ActorUserID != nil {
		row.ActorUserID = sql.NullInt64{Int64: *entry.ActorUserID, Valid: true}
	}
	if err := conn.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	entry.ID = row.ID
	return nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]domain.Entry, error) {
	stmt := conn.WithContext(ctx).Model(&auditRow{})

	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		stmt = stmt.Where("actor = ?", actor)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", db.FormatTime(*filter.From))
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at < ?", db.FormatTime(*filter.To))
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rows []auditRow
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		createdAt, err := db.ParseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		entry := domain.Entry{
			ID:         row.ID,
			CreatedAt:  createdAt,
			Actor:      row.Actor,
			Action:     row.Action,
			TargetType: row.TargetType,
			TargetID:   row.TargetID,
			Metadata:   row.Metadata,
		}
		if row.ActorUserID.Valid {
			id := row.ActorUserID.Int64
			entry.ActorUserID = &id
		}
		if len(entry.Metadata) == 0 {
			entry.Metadata = nil
		}
		out = append(out, entry)
	}
	return out, nil
}

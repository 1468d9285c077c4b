package db

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork runs fn inside one transaction. fn's error rolls everything back
// and is returned unchanged.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(gdb *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: gdb}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return u.db.WithContext(ctx).Transaction(fn)
}

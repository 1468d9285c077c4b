package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DSN builds a go-sqlite3 connection string. Options are applied on every
// new connection: foreign keys on, a busy timeout, and BEGIN IMMEDIATE so a
// write transaction takes the lock up front instead of upgrading later.
func DSN(cfg Config) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	return fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", strings.TrimSpace(cfg.Path), busy)
}

func Dialect(cfg Config) (gorm.Dialector, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return sqlite.Open(DSN(cfg)), nil
}

package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// StoreLoggerConfig configures the SQL statement logger.
type StoreLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// DefaultStoreLoggerConfig logs failed and slow statements only.
func DefaultStoreLoggerConfig() StoreLoggerConfig {
	return StoreLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 250 * time.Millisecond,
	}
}

// StoreLogger routes gorm's statement log into zap. Bound parameters are
// never logged since they carry PIN hashes and vault material.
type StoreLogger struct {
	log *zap.Logger
	cfg StoreLoggerConfig
}

func NewStoreLogger(base *zap.Logger, cfg StoreLoggerConfig) *StoreLogger {
	return &StoreLogger{log: base.Named("store"), cfg: cfg}
}

func (l *StoreLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *StoreLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *StoreLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *StoreLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *StoreLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	if ce := WithContext(ctx, l.log).Check(level, msg); ce != nil {
		ce.Write(zap.Any("data", data))
	}
}

// Trace logs failed statements at error, slow ones at warn and the rest at
// debug when the level is Info. A missing row is not a failure.
func (l *StoreLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var level zapcore.Level
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.cfg.Level >= gormlogger.Error:
		level = zapcore.ErrorLevel
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case l.cfg.Level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	ce := WithContext(ctx, l.log).Check(level, "store.statement")
	if ce == nil {
		return
	}
	sql, rows := fc()
	verb, table := describeStatement(sql)
	fields := []zap.Field{
		zap.String("verb", verb),
		zap.String("table", table),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// ParamsFilter drops bound values from every logged statement.
func (l *StoreLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

// describeStatement returns the leading SQL verb and the first table the
// statement names, or "" when it cannot tell.
func describeStatement(sql string) (verb, table string) {
	tokens := strings.Fields(strings.ToUpper(sql))
	original := strings.Fields(sql)
	for i, tok := range tokens {
		tok = strings.Trim(tok, "(;")
		if verb == "" {
			switch tok {
			case "SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP", "PRAGMA", "VACUUM":
				verb = tok
				if tok == "UPDATE" && i+1 < len(original) {
					return verb, cleanIdent(original[i+1])
				}
			}
			continue
		}
		if (tok == "FROM" || tok == "INTO" || tok == "TABLE") && i+1 < len(original) {
			next := cleanIdent(original[i+1])
			if strings.EqualFold(next, "IF") && i+4 < len(original) {
				next = cleanIdent(original[i+4])
			}
			return verb, next
		}
	}
	if verb == "" {
		verb = "OTHER"
	}
	return verb, table
}

func cleanIdent(s string) string {
	return strings.Trim(s, "`\"'();,")
}

var _ gormlogger.Interface = (*StoreLogger)(nil)

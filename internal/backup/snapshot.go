package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const snapshotMagic = "SBSNAP1\n"

var (
	ErrInvalidSnapshot = errors.New("invalid snapshot blob")
	ErrNoBackups       = errors.New("no backups found")
)

// CreateSnapshot returns a consistent copy of the whole database.
func (s *Service) CreateSnapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "stockbook-snapshot-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return nil, fmt.Errorf("vacuum into snapshot: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, len(snapshotMagic)+snappy.MaxEncodedLen(len(raw)))
	blob = append(blob, snapshotMagic...)
	blob = append(blob, snappy.Encode(nil, raw)...)
	s.log.Debug("snapshot created", zap.Int("raw_bytes", len(raw)), zap.Int("blob_bytes", len(blob)))
	return blob, nil
}

// RestoreSnapshot replaces the live database contents with blob using the
// SQLite online backup API, so open handles stay valid.
func (s *Service) RestoreSnapshot(ctx context.Context, blob []byte) error {
	if !bytes.HasPrefix(blob, []byte(snapshotMagic)) {
		return ErrInvalidSnapshot
	}
	raw, err := snappy.Decode(nil, blob[len(snapshotMagic):])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	dir, err := os.MkdirTemp("", "stockbook-restore-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "restore.db")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return err
	}

	src, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer src.Close()
	srcConn, err := src.Conn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Close()

	live, err := s.db.DB()
	if err != nil {
		return err
	}
	dstConn, err := live.Conn(ctx)
	if err != nil {
		return err
	}
	defer dstConn.Close()

	err = dstConn.Raw(func(dstDriver any) error {
		dst, ok := dstDriver.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dstDriver)
		}
		return srcConn.Raw(func(srcDriver any) error {
			srcLite, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", srcDriver)
			}
			return copyDatabase(dst, srcLite)
		})
	})
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	s.log.Info("snapshot restored", zap.Int("raw_bytes", len(raw)))
	return nil
}

func copyDatabase(dst, src *sqlite3.SQLiteConn) error {
	bk, err := dst.Backup("main", src, "main")
	if err != nil {
		return err
	}
	for attempt := 0; attempt < 100; attempt++ {
		done, err := bk.Step(-1)
		if err != nil {
			_ = bk.Finish()
			return err
		}
		if done {
			return bk.Finish()
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = bk.Finish()
	return fmt.Errorf("backup did not complete")
}

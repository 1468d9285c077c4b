package migration

import (
	"fmt"

	"github.com/smallbiznis/stockbook/internal/apperror"
)

// FailureError reports an aborted migration run. The store is back at the
// version it had before Run was called.
type FailureError struct {
	Version    int
	Name       string
	Err        error
	Restored   bool
	RestoreErr error
}

func (e *FailureError) Error() string {
	base := fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Name, e.Err)
	switch {
	case e.RestoreErr != nil:
		return base + "; restore from backup failed: " + e.RestoreErr.Error()
	case e.Restored:
		return base + "; database restored from backup"
	default:
		return base + "; changes rolled back"
	}
}

func (e *FailureError) Unwrap() error { return e.Err }

func (e *FailureError) Is(target error) bool { return target == apperror.ErrMigration }

func (e *FailureError) Kind() apperror.Kind { return apperror.KindMigration }

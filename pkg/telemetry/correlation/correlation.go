// Package correlation carries the operation id that ties together the log
// lines of one CLI command, ops request or scheduler run.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header is the HTTP header an operation id is read from and echoed in.
const Header = "X-Request-Id"

const maxIDLength = 64

type idKey struct{}

// ID returns the operation id on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(idKey{}).(string)
	return id
}

// WithID stores id on ctx. Ids that Sanitize rejects are ignored.
func WithID(ctx context.Context, id string) context.Context {
	id = Sanitize(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, idKey{}, id)
}

// Ensure returns ctx carrying an operation id, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, idKey{}, id), id
}

// Sanitize returns raw trimmed when it is short and made only of letters,
// digits and "-_.:", and "" otherwise. Client supplied ids pass through it
// before they are logged or echoed.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxIDLength {
		return ""
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return raw
}

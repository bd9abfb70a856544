package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/Newrona-pi/textgame-chatapp/internal/policy"
)

// NewStore picks a backend from the database URL: empty keeps records in
// memory, postgres:// uses PostgreSQL and sqlite://path an embedded file.
func NewStore(ctx context.Context, databaseURL string, redactor policy.Redactor) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return NewInMemoryStore(redactor), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url, redactor)
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite database url needs a path: %q", databaseURL)
		}
		return NewSQLiteStore(ctx, path, redactor)
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", databaseURL)
	}
}

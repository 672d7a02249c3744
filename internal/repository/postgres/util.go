package postgres

import (
	"time"

	"github.com/NordCoder/Herald/internal/domain"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = domain.ErrNotFound

// psql builds statements with $n placeholders for pgx.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

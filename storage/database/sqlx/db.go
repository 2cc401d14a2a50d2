// Package sqlxrepos implements the domain repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"github.com/jmoiron/sqlx"

	"github.com/beshoyehab/schoolbot/core"
)

// getExt prefers an executor handed down by the caller (typically a
// transaction) over the repository's own connection pool.
func getExt(db *sqlx.DB, exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 {
		if ext, ok := exec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}

package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// postgres error codes the repositories branch on.
const (
	codeUniqueViolation = "23505"
	codeDuplicateTable  = "42P07"
	codeDuplicateObject = "42710"
	codeDuplicateColumn = "42701"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize rewrites a gendry statement for postgres: `LIMIT offset, count`
// becomes `LIMIT count OFFSET offset` and `?` placeholders become `$n`.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := limitRegex.FindStringIndex(query); loc != nil {
		n := strings.Count(query[:loc[0]], "?")
		if n+1 < len(args) {
			args[n], args[n+1] = args[n+1], args[n]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func pgCode(err error) string {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Code)
	}
	return ""
}

// IsConflict reports a unique constraint violation.
func IsConflict(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsAlreadyExists reports DDL that failed only because its target exists,
// which lets migrations be replayed.
func IsAlreadyExists(err error) bool {
	switch pgCode(err) {
	case codeDuplicateTable, codeDuplicateObject, codeDuplicateColumn:
		return true
	}
	return false
}

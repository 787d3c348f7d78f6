package repository

import (
	"database/sql"
	"strings"
	"time"
)

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []uint64, lead ...any) []any {
	args := make([]any, 0, len(lead)+len(ids))
	args = append(args, lead...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func strArgs(vals []string, lead ...any) []any {
	args := make([]any, 0, len(lead)+len(vals))
	args = append(args, lead...)
	for _, v := range vals {
		args = append(args, v)
	}
	return args
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func dbTime(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// nullableTime is a DATETIME argument for an optional column.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

type rowScanner interface {
	Scan(dest ...any) error
}

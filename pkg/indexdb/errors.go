package indexdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/uptrace/bun/driver/pgdriver"
)

// sqlState extracts the SQLSTATE code from a postgres error.
func sqlState(err error) (string, bool) {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return "", false
	}
	return pgErr.Field('C'), true
}

// IsTransient reports whether err is a retryable I/O or contention failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	code, ok := sqlState(err)
	if !ok {
		return false
	}
	switch {
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "53"), // insufficient resources
		code == "40001",               // serialization failure
		code == "40P01",               // deadlock
		code == "57014",               // statement timeout / cancel
		code == "57P01", code == "57P02", code == "57P03":
		return true
	}
	return false
}

// IsFatal reports whether err indicates corrupted or inconsistent stored data
// that retrying cannot fix. Unique violations are excluded since they are
// expected on replay and handled by the conflict clauses.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlockConflict) {
		return true
	}

	code, ok := sqlState(err)
	if !ok {
		return false
	}
	switch {
	case code == "23505":
		return false
	case strings.HasPrefix(code, "23"), // integrity constraint
		strings.HasPrefix(code, "XX"), // internal error
		strings.HasPrefix(code, "22"), // data exception
		strings.HasPrefix(code, "42"): // schema mismatch
		return true
	}
	return false
}

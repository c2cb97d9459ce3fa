package db

import (
	"database/sql"
	"database/sql/driver"
	"strings"

	"github.com/teranos/paysync/errors"
)

// ErrSessionClosed is returned when a write is attempted on a closed session.
var ErrSessionClosed = errors.New("database session is closed")

// IsConnectionLost checks if an error indicates the storage connection is gone.
// This handles both:
// - Wrapped sentinel errors from database/sql and this package
// - Raw driver errors whose types we cannot match, by message
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}

	if errors.IsAny(err, ErrSessionClosed, sql.ErrConnDone, driver.ErrBadConn) {
		return true
	}

	errMsg := err.Error()
	for _, fragment := range []string{
		"database is closed",
		"connection reset",
		"broken pipe",
		"conn closed",
		"connection refused",
	} {
		if strings.Contains(errMsg, fragment) {
			return true
		}
	}
	return false
}

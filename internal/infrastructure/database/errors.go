package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// TimeLayout is how repositories store timestamps: UTC, fixed width, so
// TEXT columns sort and compare chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

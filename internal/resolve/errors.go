package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// UnmappedPrefix starts the message of every NotFoundError. Journal readers
// use it to tell a missing mapping (retry once the map is fixed) from a
// terminal ignore.
const UnmappedPrefix = "unmapped "

// ErrDoNotMigrate marks a source concept that must be skipped.
var ErrDoNotMigrate = errors.New("code is in the do not migrate list")

// NotFoundError is returned when a source identifier or code has no mapping.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s%s %s", UnmappedPrefix, e.Kind, e.Key)
}

// IsNotFound reports whether err carries a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnmappedReason reports whether a journaled ignore reason came from a
// NotFoundError.
func IsUnmappedReason(reason string) bool {
	return strings.HasPrefix(reason, UnmappedPrefix)
}

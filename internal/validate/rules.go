package validate

import (
	"fmt"
	"strings"

	"github.com/ehr/migrate/internal/source"
)

// Address columns shared by exports that carry a postal address.
const (
	ColumnAddressLine1 = "Address Line 1"
	ColumnAddressLine2 = "Address Line 2"
	ColumnCity         = "City"
	ColumnState        = "State"
	ColumnPostalCode   = "Postal Code"
)

// AddressComplete requires line 1, city, state and postal code once any
// address column is filled in.
func AddressComplete(row source.Row) error {
	filled := false
	for _, c := range []string{ColumnAddressLine1, ColumnAddressLine2, ColumnCity, ColumnState, ColumnPostalCode} {
		if row.Get(c) != "" {
			filled = true
			break
		}
	}
	if !filled {
		return nil
	}
	var missing []string
	for _, c := range []string{ColumnAddressLine1, ColumnCity, ColumnState, ColumnPostalCode} {
		if row.Get(c) == "" {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("address detected for row but missing some required fields (%s)", strings.Join(missing, ", "))
	}
	return nil
}

// MaxLength rejects rows whose column exceeds n characters.
func MaxLength(column string, n int) RowRule {
	return func(row source.Row) error {
		if l := len([]rune(row.Get(column))); l > n {
			return fmt.Errorf("%s is %d characters, limit is %d", column, l, n)
		}
		return nil
	}
}

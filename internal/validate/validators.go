package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"
)

// Func validates a single trimmed value of field. It returns the normalized
// value, or an error whose message is reported against the row.
type Func func(value, field string) (string, error)

// Required fails when the value is empty.
func Required(value, field string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("data is missing %s", field)
	}
	return value, nil
}

// dateLayouts are tried in order. Go accepts zero padded input for the
// unpadded month and day verbs, so 1/2/2006 also matches 01/02/2006.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Date normalizes MM/DD/YYYY (and the dash and dot variants) or YYYY-MM-DD
// to YYYY-MM-DD. An empty value is valid.
func Date(value, field string) (string, error) {
	if value == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid %s format: %s", field, value)
}

// ISO8601 is the output layout of DateTime: seconds precision with a numeric
// offset.
const ISO8601 = "2006-01-02T15:04:05-07:00"

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

// DateTime parses an ISO-8601 style timestamp and renders it with an explicit
// offset. Values without a zone are taken as UTC. An empty value is valid.
func DateTime(value, field string) (string, error) {
	if value == "" {
		return "", nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(ISO8601), nil
		}
	}
	return "", fmt.Errorf("invalid %s format: %s", field, value)
}

// Enum accepts a case-insensitive member of allowed and normalizes it to
// lower case. An empty value is valid.
func Enum(allowed ...string) Func {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = true
	}
	return func(value, field string) (string, error) {
		if value == "" {
			return "", nil
		}
		v := strings.ToLower(value)
		if !set[v] {
			return "", fmt.Errorf("invalid %s: %s (expected one of %s)", field, value, strings.Join(allowed, ", "))
		}
		return v, nil
	}
}

var booleanValues = map[string]bool{
	"TRUE": true, "T": true, "Y": true, "YES": true, "1": true,
	"FALSE": false, "F": false, "N": false, "NO": false, "0": false,
}

// Boolean normalizes the usual spellings to "true" or "false". Empty is false.
func Boolean(value, field string) (string, error) {
	if value == "" {
		return "false", nil
	}
	b, ok := booleanValues[strings.ToUpper(value)]
	if !ok {
		return "", fmt.Errorf("invalid boolean %s given: %s", field, value)
	}
	if b {
		return "true", nil
	}
	return "false", nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneNumber strips formatting and a leading +1 and requires ten digits.
func PhoneNumber(value, field string) (string, error) {
	if value == "" {
		return "", nil
	}
	d := digits(strings.TrimPrefix(value, "+1"))
	if len(d) != 10 {
		return "", fmt.Errorf("invalid %s: %s", field, value)
	}
	return d, nil
}

// PostalCode keeps the first five digits.
func PostalCode(value, field string) (string, error) {
	if value == "" {
		return "", nil
	}
	d := digits(value)
	if len(d) < 5 {
		return "", fmt.Errorf("invalid %s: %s", field, value)
	}
	return d[:5], nil
}

var stateCodes = map[string]bool{}

func init() {
	for _, s := range strings.Fields(`AL AK AZ AR CA CO CT DE DC FL GA HI ID IL IN IA KS KY LA ME MD
		MA MI MN MS MO MT NE NV NH NJ NM NY NC ND OH OK OR PA RI SC SD TN TX UT VT VA WA WV WI WY`) {
		stateCodes[s] = true
	}
}

// StateCode accepts two letter US state codes.
func StateCode(value, field string) (string, error) {
	if value == "" || stateCodes[value] {
		return value, nil
	}
	return "", fmt.Errorf("invalid %s: %s", field, value)
}

var emailPattern = regexp.MustCompile("^[\\w!#$%&'*+/=?^`{|}~.-]+@[a-zA-Z\\d.-]+\\.[a-zA-Z]{2,}$")

// Email performs a shape check on an address.
func Email(value, field string) (string, error) {
	if value == "" {
		return "", nil
	}
	local, _, _ := strings.Cut(value, "@")
	if !emailPattern.MatchString(strings.ToLower(value)) || strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "", fmt.Errorf("invalid %s: %s", field, value)
	}
	return value, nil
}

var timezoneAliases = map[string]string{
	"EST": "America/New_York", "EDT": "America/New_York", "ET": "America/New_York",
	"CST": "America/Chicago", "CDT": "America/Chicago", "CT": "America/Chicago",
	"MST": "America/Denver", "MDT": "America/Denver", "MT": "America/Denver",
	"PST": "America/Los_Angeles", "PDT": "America/Los_Angeles", "PT": "America/Los_Angeles",
}

// Timezone maps US abbreviations to IANA names and otherwise requires a
// loadable IANA zone.
func Timezone(value, field string) (string, error) {
	if value == "" {
		return "", nil
	}
	if tz, ok := timezoneAliases[strings.ToUpper(value)]; ok {
		return tz, nil
	}
	if _, err := time.LoadLocation(value); err == nil && value != "Local" {
		return value, nil
	}
	return "", fmt.Errorf("invalid %s given: %s", field, value)
}

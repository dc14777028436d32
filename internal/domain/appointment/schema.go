// Package appointment migrates scheduled and historical visits as FHIR
// Appointments.
package appointment

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/migrate/internal/source"
	"github.com/ehr/migrate/internal/validate"
)

const Resource = "appointment"

// Export columns. Duration, in minutes, is optional and only read when End
// Datetime is empty.
const (
	ColType       = "Appointment Type"
	ColTypeSystem = "Appointment Type System"
	ColReasonCode = "Reason for Visit Code"
	ColReasonText = "Reason for Visit Text"
	ColLocation   = "Location"
	ColMeetingURL = "Meeting Link"
	ColProvider   = "Provider"
	ColStart      = "Start Datetime"
	ColEnd        = "End Datetime"
	ColDuration   = "Duration"
	ColStatus     = "Status"
)

// CodeMapReason maps reason for visit codes to target codings.
const CodeMapReason = "rfv"

var errNoEnd = errors.New("unable to calculate appointment end date/time")

// Schema returns the appointment export schema.
func Schema() *validate.Schema {
	return &validate.Schema{
		Resource: Resource,
		Headers: []string{
			validate.ColumnID, validate.ColumnPatient, ColType, ColTypeSystem, ColReasonCode, ColReasonText,
			ColLocation, ColMeetingURL, ColProvider, ColStart, ColEnd, ColStatus,
		},
		Fields: []validate.Field{
			{Name: validate.ColumnID, Validators: []validate.Func{validate.Required}},
			{Name: validate.ColumnPatient, Validators: []validate.Func{validate.Required}},
			{Name: ColLocation, Validators: []validate.Func{validate.Required}},
			{Name: ColProvider, Validators: []validate.Func{validate.Required}},
			{Name: ColStart, Validators: []validate.Func{validate.Required, validate.DateTime}},
			{Name: ColEnd, Validators: []validate.Func{validate.DateTime}},
			{Name: ColStatus, Validators: []validate.Func{validate.Enum("booked", "fulfilled")}},
		},
		Rules: []validate.RowRule{endTime},
	}
}

// endTime fills End Datetime from Start Datetime plus Duration when the
// export has no end.
func endTime(row source.Row) error {
	if row[ColEnd] != "" {
		return nil
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(row[ColDuration]))
	if err != nil {
		return errNoEnd
	}
	start, err := time.Parse(validate.ISO8601, row[ColStart])
	if err != nil {
		return errNoEnd
	}
	row[ColEnd] = start.Add(time.Duration(minutes) * time.Minute).Format(validate.ISO8601)
	return nil
}

package workflow

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

var validate = validator.New(validator.WithRequiredStructEnabled())

// DateRangeType selects how a workflow's date range is resolved
type DateRangeType string

const (
	DateRangeRelative DateRangeType = "relative"
	DateRangeAbsolute DateRangeType = "absolute"
	DateRangeRolling  DateRangeType = "rolling"
)

// Relative presets
const (
	PresetToday      = "today"
	PresetYesterday  = "yesterday"
	PresetLast3Days  = "last_3_days"
	PresetLast7Days  = "last_7_days"
	PresetLast14Days = "last_14_days"
	PresetLast30Days = "last_30_days"
	PresetThisMonth  = "this_month"
	PresetLastMonth  = "last_month"
)

var lastNDaysPresets = map[string]int{
	PresetLast3Days:  3,
	PresetLast7Days:  7,
	PresetLast14Days: 14,
	PresetLast30Days: 30,
}

// DateRangeSpec describes the dates a workflow covers
type DateRangeSpec struct {
	Type   DateRangeType `json:"type" validate:"required,oneof=relative absolute rolling"`
	Preset string        `json:"preset,omitempty" validate:"required_if=Type relative,omitempty,oneof=today yesterday last_3_days last_7_days last_14_days last_30_days this_month last_month"`
	Since  string        `json:"since,omitempty" validate:"required_if=Type absolute,omitempty,datetime=2006-01-02"`
	Until  string        `json:"until,omitempty" validate:"required_if=Type absolute,omitempty,datetime=2006-01-02"`
	Days   int           `json:"days,omitempty" validate:"required_if=Type rolling,omitempty,gte=1,lte=366"`
}

// Validate validates the range's shape; Resolve additionally checks it against the clock
func (s DateRangeSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return NewValidationError("dateRange", err.Error())
	}
	return nil
}

// Resolve turns the range definition into a concrete inclusive [since, until] range of calendar
// dates as seen in loc at instant now. Dates are returned as UTC midnights.
func (s DateRangeSpec) Resolve(now time.Time, loc *time.Location) (DateRange, error) {
	if err := s.Validate(); err != nil {
		return DateRange{}, err
	}
	today := DateOf(now, loc)

	var since, until time.Time
	switch s.Type {
	case DateRangeRelative:
		switch s.Preset {
		case PresetToday:
			since, until = today, today
		case PresetYesterday:
			y := today.AddDate(0, 0, -1)
			since, until = y, y
		case PresetThisMonth:
			since = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
			until = today
		case PresetLastMonth:
			firstOfThis := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
			since = firstOfThis.AddDate(0, -1, 0)
			until = firstOfThis.AddDate(0, 0, -1)
		default:
			n := lastNDaysPresets[s.Preset]
			until = today.AddDate(0, 0, -1)
			since = until.AddDate(0, 0, -(n - 1))
		}
	case DateRangeAbsolute:
		var err error
		if since, err = ParseDate(s.Since); err != nil {
			return DateRange{}, err
		}
		if until, err = ParseDate(s.Until); err != nil {
			return DateRange{}, err
		}
	case DateRangeRolling:
		until = today
		since = today.AddDate(0, 0, -(s.Days - 1))
	}

	r := DateRange{Since: since, Until: until}
	if err := r.Validate(today); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// DateRange is a concrete inclusive range of calendar dates
type DateRange struct {
	Since time.Time
	Until time.Time
}

// Validate checks ordering and that no date lies after today
func (r DateRange) Validate(today time.Time) error {
	if r.Since.After(r.Until) {
		return NewValidationError("dateRange", fmt.Sprintf("since %s is after until %s",
			r.Since.Format(DateLayout), r.Until.Format(DateLayout)))
	}
	if r.Until.After(today) {
		return NewValidationError("dateRange", fmt.Sprintf("until %s is in the future",
			r.Until.Format(DateLayout)))
	}
	return nil
}

// Days returns the inclusive list of dates from oldest to newest
func (r DateRange) Days() []time.Time {
	if r.Since.After(r.Until) {
		return nil
	}
	days := make([]time.Time, 0, int(r.Until.Sub(r.Since).Hours()/24)+1)
	for d := r.Since; !d.After(r.Until); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, NewValidationError("date", fmt.Sprintf("invalid date %q", s))
	}
	return d, nil
}

// DateOf returns the calendar date of t in loc as a UTC midnight
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

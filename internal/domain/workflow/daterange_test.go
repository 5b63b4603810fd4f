package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDateRangeSpec_Resolve(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		spec  DateRangeSpec
		since string
		until string
	}{
		{"today", DateRangeSpec{Type: DateRangeRelative, Preset: PresetToday}, "2024-03-10", "2024-03-10"},
		{"yesterday", DateRangeSpec{Type: DateRangeRelative, Preset: PresetYesterday}, "2024-03-09", "2024-03-09"},
		{"last 3 days ends yesterday", DateRangeSpec{Type: DateRangeRelative, Preset: PresetLast3Days}, "2024-03-07", "2024-03-09"},
		{"last 7 days", DateRangeSpec{Type: DateRangeRelative, Preset: PresetLast7Days}, "2024-03-03", "2024-03-09"},
		{"last 30 days crosses month", DateRangeSpec{Type: DateRangeRelative, Preset: PresetLast30Days}, "2024-02-09", "2024-03-09"},
		{"this month", DateRangeSpec{Type: DateRangeRelative, Preset: PresetThisMonth}, "2024-03-01", "2024-03-10"},
		{"last month in leap year", DateRangeSpec{Type: DateRangeRelative, Preset: PresetLastMonth}, "2024-02-01", "2024-02-29"},
		{"absolute", DateRangeSpec{Type: DateRangeAbsolute, Since: "2024-03-01", Until: "2024-03-03"}, "2024-03-01", "2024-03-03"},
		{"rolling includes today", DateRangeSpec{Type: DateRangeRolling, Days: 3}, "2024-03-08", "2024-03-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.spec.Resolve(now, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, day(tt.since), r.Since)
			assert.Equal(t, day(tt.until), r.Until)
		})
	}
}

func TestDateRangeSpec_ResolveInLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	// 20:00 UTC is already the next day in UTC+7
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	r, err := DateRangeSpec{Type: DateRangeRelative, Preset: PresetYesterday}.Resolve(now, loc)
	require.NoError(t, err)
	assert.Equal(t, day("2024-03-10"), r.Since)
}

func TestDateRangeSpec_ResolveRejects(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec DateRangeSpec
	}{
		{"unknown type", DateRangeSpec{Type: "weekly"}},
		{"relative without preset", DateRangeSpec{Type: DateRangeRelative}},
		{"unknown preset", DateRangeSpec{Type: DateRangeRelative, Preset: "last_year"}},
		{"absolute missing until", DateRangeSpec{Type: DateRangeAbsolute, Since: "2024-03-01"}},
		{"absolute bad format", DateRangeSpec{Type: DateRangeAbsolute, Since: "03/01/2024", Until: "2024-03-02"}},
		{"absolute reversed", DateRangeSpec{Type: DateRangeAbsolute, Since: "2024-03-05", Until: "2024-03-01"}},
		{"absolute in the future", DateRangeSpec{Type: DateRangeAbsolute, Since: "2024-03-09", Until: "2024-03-11"}},
		{"rolling zero days", DateRangeSpec{Type: DateRangeRolling}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Resolve(now, time.UTC)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestDateRange_Days(t *testing.T) {
	r := DateRange{Since: day("2024-02-28"), Until: day("2024-03-01")}
	assert.Equal(t, []time.Time{day("2024-02-28"), day("2024-02-29"), day("2024-03-01")}, r.Days())

	single := DateRange{Since: day("2024-03-01"), Until: day("2024-03-01")}
	assert.Len(t, single.Days(), 1)

	assert.Empty(t, DateRange{Since: day("2024-03-02"), Until: day("2024-03-01")}.Days())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())

	_, err = ParseDate("2024-13-01")
	assert.True(t, IsValidation(err))
}

func TestDateOf(t *testing.T) {
	instant := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, day("2024-03-10"), DateOf(instant, nil))

	loc := time.FixedZone("UTC+7", 7*3600)
	assert.Equal(t, day("2024-03-11"), DateOf(instant, loc))
}

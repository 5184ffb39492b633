package enums

import "fmt"

// ReportPeriod bounds the sales reporting feed in time.
type ReportPeriod string

const (
	ReportPeriodDaily   ReportPeriod = "daily"
	ReportPeriodWeekly  ReportPeriod = "weekly"
	ReportPeriodMonthly ReportPeriod = "monthly"
	ReportPeriodAll     ReportPeriod = "all"
)

var validReportPeriods = []ReportPeriod{
	ReportPeriodDaily,
	ReportPeriodWeekly,
	ReportPeriodMonthly,
	ReportPeriodAll,
}

// String implements fmt.Stringer.
func (r ReportPeriod) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReportPeriod.
func (r ReportPeriod) IsValid() bool {
	for _, candidate := range validReportPeriods {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReportPeriod converts raw input into a ReportPeriod.
func ParseReportPeriod(value string) (ReportPeriod, error) {
	for _, candidate := range validReportPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report period %q", value)
}

package schemas

import "time"

// -- Trend Schemas --

// DailyTrend is one aggregated row per (repository, date). A day with no
// completed scans still produces a row with all-zero counts so that gaps are
// visible in charts.
//
// TotalFindings is the average total across the day's scans, while the
// per-severity counts are sums across the same scans. The asymmetry is
// deliberate and load-bearing for downstream consumers.
type DailyTrend struct {
	Repository string    `json:"repository"`
	Date       time.Time `json:"date"` // Midnight, local to the aggregation timezone.

	TotalFindings int `json:"total_findings"`
	CriticalCount int `json:"critical_count"`
	HighCount     int `json:"high_count"`
	MediumCount   int `json:"medium_count"`
	LowCount      int `json:"low_count"`
	InfoCount     int `json:"info_count"`

	ScanCount int `json:"scan_count"` // Number of scans folded into this row.
}

// TrendDelta is the percentage change of one bucket between two periods.
type TrendDelta struct {
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	// ChangePct is (current-previous)/previous*100. When the previous average
	// is zero the change is reported as 100 if the current average is
	// positive, else 0, so a regression from a clean baseline is still
	// signalled without dividing by zero.
	ChangePct float64 `json:"change_pct"`
}

// PeriodComparison compares bucket averages between two date ranges.
type PeriodComparison struct {
	Repository string `json:"repository"`

	Period1Start time.Time `json:"period1_start"`
	Period1End   time.Time `json:"period1_end"`
	Period2Start time.Time `json:"period2_start"`
	Period2End   time.Time `json:"period2_end"`

	Total    TrendDelta `json:"total"`
	Critical TrendDelta `json:"critical"`
	High     TrendDelta `json:"high"`
	Medium   TrendDelta `json:"medium"`
	Low      TrendDelta `json:"low"`
	Info     TrendDelta `json:"info"`
}
